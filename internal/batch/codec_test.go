package batch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleBatch() *Batch {
	return &Batch{
		Images: []Image{
			{Height: 2, Width: 3, Channels: 1, Pix: []byte{1, 2, 3, 4, 5, 6}},
			{Height: 2, Width: 3, Channels: 1, Pix: []byte{9, 8, 7, 6, 5, 4}},
		},
		MaskGT: []Image{
			{Height: 2, Width: 3, Channels: 1, Pix: []byte{0, 1, 0, 1, 0, 1}},
		},
		Keypoints: []KeypointSet{
			{Height: 2, Width: 3, Points: []Keypoint{{X: 0.5, Y: 1}, {X: 2, Y: 0}}},
		},
		Data: []byte(`{"seq":7}`),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleBatch()

	frame, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestSentinelIsNotABatch(t *testing.T) {
	done := EncodeDone()
	if !IsDone(done) {
		t.Fatalf("sentinel not recognized")
	}
	if _, err := Decode(done); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame decoding sentinel, got %v", err)
	}

	frame, err := Encode(sampleBatch())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if IsDone(frame) {
		t.Fatalf("batch frame misread as sentinel")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"short":       {0x41},
		"bad magic":   append([]byte("NOPE"), 1, 1),
		"bad version": append([]byte(frameMagic), 99, 1),
		"bad kind":    append([]byte(frameMagic), 1, 42),
	}
	for name, frame := range cases {
		if _, err := Decode(frame); !errors.Is(err, ErrBadFrame) {
			t.Fatalf("%s: expected ErrBadFrame, got %v", name, err)
		}
		if IsDone(frame) {
			t.Fatalf("%s: misread as sentinel", name)
		}
	}
}

func TestImageAccessors(t *testing.T) {
	im := Image{Height: 2, Width: 2, Channels: 2, Pix: make([]byte, 8)}
	im.Set(1, 0, 1, 200)
	if got := im.At(1, 0, 1); got != 200 {
		t.Fatalf("At returned %d", got)
	}

	clone := im.Clone()
	clone.Set(0, 0, 0, 9)
	if im.At(0, 0, 0) == 9 {
		t.Fatalf("clone shares pixel storage")
	}
}
