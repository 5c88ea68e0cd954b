package batch

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Wire format: a 6-byte header followed by a CBOR body.
//
//	bytes 0-3  magic "AUGB"
//	byte  4    format version
//	byte  5    frame kind
//
// kind=frameKindBatch frames carry a CBOR-encoded Batch. kind=frameKindDone
// frames are the terminal sentinel emitted once per consumer worker and have
// no body, so a sentinel can never be mistaken for a payload.
const (
	frameMagic   = "AUGB"
	frameVersion = 1

	frameKindBatch = 1
	frameKindDone  = 2

	headerLen = 6
)

// ErrBadFrame reports a frame that does not carry the expected magic,
// version or kind.
var ErrBadFrame = errors.New("batch: malformed frame")

func header(kind byte) []byte {
	h := make([]byte, headerLen, headerLen+64)
	copy(h, frameMagic)
	h[4] = frameVersion
	h[5] = kind
	return h
}

// Encode serializes a Batch into a wire frame.
func Encode(b *Batch) ([]byte, error) {
	body, err := cbor.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "encode batch body")
	}
	return append(header(frameKindBatch), body...), nil
}

// EncodeDone returns a terminal sentinel frame.
func EncodeDone() []byte {
	return header(frameKindDone)
}

// IsDone reports whether a frame is a terminal sentinel. Malformed frames
// are not sentinels; Decode will reject them.
func IsDone(frame []byte) bool {
	return checkHeader(frame) == nil && frame[5] == frameKindDone
}

// Decode deserializes a batch frame produced by Encode.
func Decode(frame []byte) (*Batch, error) {
	if err := checkHeader(frame); err != nil {
		return nil, err
	}
	if frame[5] != frameKindBatch {
		return nil, errors.Wrapf(ErrBadFrame, "kind %d is not a batch", frame[5])
	}
	var b Batch
	if err := cbor.Unmarshal(frame[headerLen:], &b); err != nil {
		return nil, errors.Wrap(err, "decode batch body")
	}
	return &b, nil
}

func checkHeader(frame []byte) error {
	if len(frame) < headerLen {
		return errors.Wrapf(ErrBadFrame, "short frame (%d bytes)", len(frame))
	}
	if string(frame[:4]) != frameMagic {
		return errors.Wrapf(ErrBadFrame, "bad magic %q", frame[:4])
	}
	if frame[4] != frameVersion {
		return errors.Wrapf(ErrBadFrame, "unsupported version %d", frame[4])
	}
	return nil
}
