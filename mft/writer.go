package mft

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/brettbedarf/simfs"
)

// Writer encodes records onto an underlying stream. Call Flush when done.
type Writer struct {
	bw  *bufio.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Write encodes a single record
func (w *Writer) Write(rec *Record) error {
	if rec.Name == "" || strings.IndexByte(rec.Name, 0) >= 0 {
		return fmt.Errorf("%w: record %d name %q", simfs.ErrInvalidName, rec.ID, rec.Name)
	}
	if len(rec.Name)+1 > MaxNameLen {
		return fmt.Errorf("%w: record %d name is %d bytes, at most %d allowed", simfs.ErrInvalidName, rec.ID, len(rec.Name), MaxNameLen-1)
	}
	if rec.ID < 0 {
		return fmt.Errorf("%w: record %d: negative id", simfs.ErrCorrupt, rec.ID)
	}
	if len(rec.ChildIDs) > MaxEntries || len(rec.Blocks) > MaxEntries {
		return fmt.Errorf("%w: record %d has more than %d entries", simfs.ErrCorrupt, rec.ID, MaxEntries)
	}

	b := w.buf[:0]
	b = binary.LittleEndian.AppendUint32(b, uint32(rec.ID))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(rec.Name)+1))
	b = append(b, rec.Name...)
	b = append(b, 0)

	if rec.IsDir {
		b = append(b, 1)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(rec.ChildIDs)))
		for _, id := range rec.ChildIDs {
			b = binary.LittleEndian.AppendUint64(b, uint64(id))
		}
	} else {
		if rec.Size < 0 || rec.Size > math.MaxInt32 {
			return fmt.Errorf("%w: record %d size %d", simfs.ErrInvalidSize, rec.ID, rec.Size)
		}
		b = append(b, 0)
		b = binary.LittleEndian.AppendUint32(b, uint32(rec.Size))
		b = binary.LittleEndian.AppendUint32(b, uint32(len(rec.Blocks)))
		for _, idx := range rec.Blocks {
			b = binary.LittleEndian.AppendUint64(b, uint64(idx))
		}
	}
	w.buf = b

	_, err := w.bw.Write(b)
	return err
}

// Flush writes any buffered data to the underlying stream
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
