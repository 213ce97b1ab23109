// Package blockalloc keeps the block allocation table of the simulated disk.
//
// The table is a file of one flag byte per block: 0 means free, anything else
// means used. The file is the only copy of the bitmap. Every call reads it
// in full and every mutation rewrites it in full through an atomic rename, so
// a failed call never leaves a half-updated table behind and no file handle is
// held between calls.
package blockalloc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
	fslock "github.com/ipfs/go-fs-lock"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
)

// LockSuffix is appended to the table file name to get its lock file name
const LockSuffix = ".lock"

const (
	flagFree byte = 0
	flagUsed byte = 1
)

// Table is a file-backed block allocation table of a fixed number of blocks
type Table struct {
	path      string
	numBlocks int
	lock      io.Closer
}

var (
	_ simfs.BlockAllocator = (*Table)(nil)
	_ simfs.TableInspector = (*Table)(nil)
)

// Open binds the table at path for the lifetime of the returned Table and takes
// an advisory lock next to it. The file itself is not touched; call
// [Table.Format] to create or reset it.
//
// Make sure to Close the table when done so the lock is released.
func Open(path string, numBlocks int) (*Table, error) {
	logger := util.GetLogger("BlockAlloc.Open")

	if numBlocks <= 0 {
		return nil, fmt.Errorf("table %s: block count must be positive, got %d", path, numBlocks)
	}

	lk, err := fslock.Lock(filepath.Dir(path), filepath.Base(path)+LockSuffix)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to lock block allocation table")
		return nil, fmt.Errorf("lock table %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Int("blocks", numBlocks).Msg("Opened block allocation table")
	return &Table{path: path, numBlocks: numBlocks, lock: lk}, nil
}

// Close releases the table lock. Safe to call more than once.
func (t *Table) Close() error {
	logger := util.GetLogger("BlockAlloc.Close")

	if t.lock == nil {
		return nil
	}
	err := t.lock.Close()
	t.lock = nil
	if err != nil {
		return fmt.Errorf("unlock table %s: %w", t.path, err)
	}
	logger.Debug().Str("path", t.path).Msg("Released block allocation table")
	return nil
}

// Path returns the table file path
func (t *Table) Path() string {
	return t.path
}

// NumBlocks returns the fixed number of blocks in the table
func (t *Table) NumBlocks() int {
	return t.numBlocks
}

// Format rewrites the table file with every block free.
func (t *Table) Format() error {
	logger := util.GetLogger("BlockAlloc.Format")

	if err := t.write(make([]byte, t.numBlocks)); err != nil {
		logger.Error().Err(err).Str("path", t.path).Msg("Failed to format table")
		return err
	}
	logger.Debug().Str("path", t.path).Int("blocks", t.numBlocks).Msg("Formatted table")
	return nil
}

// read loads the whole table and checks its length
func (t *Table) read() ([]byte, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", simfs.ErrIO, t.path, err)
	}
	if len(data) != t.numBlocks {
		return nil, fmt.Errorf("%w: %s has %d entries, want %d", simfs.ErrTableSize, t.path, len(data), t.numBlocks)
	}
	return data, nil
}

// write replaces the whole table file atomically
func (t *Table) write(data []byte) error {
	f, err := atomicfile.New(t.path, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", simfs.ErrIO, t.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Abort() // nolint:errcheck
		return fmt.Errorf("%w: write %s: %w", simfs.ErrIO, t.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", simfs.ErrIO, t.path, err)
	}
	return nil
}

func (t *Table) inRange(idx simfs.BlockIndex) bool {
	return idx >= 0 && idx < simfs.BlockIndex(t.numBlocks)
}
