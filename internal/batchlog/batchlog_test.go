package batchlog

import (
	"io"
	"os"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "test")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	frames := [][]byte{
		[]byte("first"),
		[]byte("second frame"),
		{},
	}
	for _, frame := range frames {
		if err := w.Record(frame); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := w.Record([]byte("late")); err == nil {
		t.Fatalf("record after close should fail")
	}

	r, err := NewReader(w.Path())
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer r.Close()

	for i, want := range frames {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if string(rec.Frame) != string(want) {
			t.Fatalf("record %d: got %q want %q", i, rec.Frame, want)
		}
		if rec.Timestamp.IsZero() {
			t.Fatalf("record %d: missing timestamp", i)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReaderRejectsBadMagic(t *testing.T) {
	path := t.TempDir() + "/bad.bin"
	if err := os.WriteFile(path, []byte("NOTALOG0rest"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewReader(path); err == nil {
		t.Fatalf("expected magic error")
	}

	if _, err := NewReader("/nonexistent/path.bin"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
