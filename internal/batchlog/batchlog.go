// Package batchlog persists serialized batch frames to disk as a stream of
// timestamped, length-prefixed records. The demo pipeline can record its
// augmented output for later inspection with augpipe-decode.
package batchlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const logMagic = "AUGPLOG1"

// recordHeaderLen is 8 bytes of unix-nano timestamp plus 4 bytes of payload
// length, both little endian.
const recordHeaderLen = 12

// Writer appends frames to a batch log file. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewWriter creates a timestamped log file under dir.
func NewWriter(dir string, prefix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create batch log dir")
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrap(err, "create batch log")
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(logMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.f.Name() }

// Record appends one frame.
func (w *Writer) Record(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("batch log writer is closed")
	}
	var header [recordHeaderLen]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(frame)))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(frame); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		w.w = nil
		return err
	}
	err := w.f.Close()
	w.w = nil
	return err
}

// Record is one entry read back from a batch log.
type Record struct {
	Timestamp time.Time
	Frame     []byte
}

// Reader iterates over a batch log file.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

// NewReader opens a batch log and validates its magic.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open batch log")
	}
	r := bufio.NewReader(f)
	header := make([]byte, len(logMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "read batch log magic")
	}
	if string(header) != logMagic {
		_ = f.Close()
		return nil, errors.Errorf("unexpected batch log magic %q", header)
	}
	return &Reader{f: f, r: r}, nil
}

// Next returns the next record, or io.EOF at the end of the log.
func (r *Reader) Next() (Record, error) {
	var header [recordHeaderLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "read record header")
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	size := binary.LittleEndian.Uint32(header[8:12])
	frame := make([]byte, size)
	if _, err := io.ReadFull(r.r, frame); err != nil {
		return Record{}, errors.Wrap(err, "read record payload")
	}
	return Record{Timestamp: time.Unix(0, ts), Frame: frame}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }
