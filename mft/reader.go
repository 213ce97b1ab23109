package mft

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/brettbedarf/simfs"
)

// Reader decodes records from an underlying stream
type Reader struct {
	br     *bufio.Reader
	buf    [8]byte
	offset int64 // bytes consumed, for error messages
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed so far
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next decodes the next record. It returns io.EOF only when the stream ends
// cleanly between records; every other problem wraps simfs.ErrCorrupt.
func (r *Reader) Next() (*Record, error) {
	start := r.offset

	id, err := r.readInt32()
	if err != nil {
		if errors.Is(err, io.EOF) && r.offset == start {
			return nil, io.EOF
		}
		return nil, r.corrupt(start, "id", err)
	}
	if id < 0 {
		return nil, r.corrupt(start, "id", fmt.Errorf("negative id %d", id))
	}
	rec := &Record{ID: simfs.InodeID(id)}

	nameLen, err := r.readInt32()
	if err != nil {
		return nil, r.corrupt(start, "name_len", err)
	}
	if nameLen < 2 || nameLen > MaxNameLen {
		return nil, r.corrupt(start, "name_len", fmt.Errorf("length %d outside [2,%d]", nameLen, MaxNameLen))
	}
	name := make([]byte, nameLen)
	if err := r.full(name); err != nil {
		return nil, r.corrupt(start, "name", err)
	}
	if bytes.IndexByte(name, 0) != len(name)-1 {
		return nil, r.corrupt(start, "name", fmt.Errorf("name is not a single NUL terminated string"))
	}
	rec.Name = string(name[:len(name)-1])

	kind, err := r.readByte()
	if err != nil {
		return nil, r.corrupt(start, "is_directory", err)
	}
	rec.IsDir = kind != 0

	if rec.IsDir {
		n, err := r.count("num_children", start)
		if err != nil {
			return nil, err
		}
		rec.ChildIDs = make([]simfs.InodeID, n)
		for i := range rec.ChildIDs {
			v, err := r.readInt64()
			if err != nil {
				return nil, r.corrupt(start, "child_id", err)
			}
			rec.ChildIDs[i] = simfs.InodeID(v)
		}
		return rec, nil
	}

	size, err := r.readInt32()
	if err != nil {
		return nil, r.corrupt(start, "filesize", err)
	}
	if size < 0 {
		return nil, r.corrupt(start, "filesize", fmt.Errorf("negative size %d", size))
	}
	rec.Size = int64(size)

	n, err := r.count("num_blocks", start)
	if err != nil {
		return nil, err
	}
	if n != simfs.BlocksNeeded(rec.Size) {
		return nil, r.corrupt(start, "num_blocks",
			fmt.Errorf("%d blocks for %d bytes, want %d", n, rec.Size, simfs.BlocksNeeded(rec.Size)))
	}
	rec.Blocks = make([]simfs.BlockIndex, n)
	for i := range rec.Blocks {
		v, err := r.readInt64()
		if err != nil {
			return nil, r.corrupt(start, "block_index", err)
		}
		rec.Blocks[i] = simfs.BlockIndex(v)
	}
	return rec, nil
}

func (r *Reader) count(field string, start int64) (int, error) {
	n, err := r.readInt32()
	if err != nil {
		return 0, r.corrupt(start, field, err)
	}
	if n < 0 || n > MaxEntries {
		return 0, r.corrupt(start, field, fmt.Errorf("count %d outside [0,%d]", n, MaxEntries))
	}
	return int(n), nil
}

func (r *Reader) corrupt(start int64, field string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: record at offset %d: %s: %w", simfs.ErrCorrupt, start, field, err)
}

func (r *Reader) full(p []byte) error {
	n, err := io.ReadFull(r.br, p)
	r.offset += int64(n)
	return err
}

func (r *Reader) readByte() (byte, error) {
	if err := r.full(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) readInt32() (int32, error) {
	if err := r.full(r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) readInt64() (int64, error) {
	if err := r.full(r.buf[:8]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(r.buf[:8])), nil
}
