package blockalloc

import (
	"fmt"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
)

// Allocate marks the lowest-indexed free block as used and returns its index.
// Returns simfs.ErrOutOfSpace, leaving the table untouched, when every block is used.
func (t *Table) Allocate() (simfs.BlockIndex, error) {
	logger := util.GetLogger("BlockAlloc.Allocate")

	data, err := t.read()
	if err != nil {
		return 0, err
	}
	for i, flag := range data {
		if flag != flagFree {
			continue
		}
		data[i] = flagUsed
		if err := t.write(data); err != nil {
			return 0, err
		}
		logger.Trace().Int("block", i).Msg("Allocated block")
		return simfs.BlockIndex(i), nil
	}

	logger.Debug().Int("blocks", t.numBlocks).Msg("No free block left")
	return 0, fmt.Errorf("%w: all %d blocks in use", simfs.ErrOutOfSpace, t.numBlocks)
}

// Free marks a single block as free. Freeing a block that is already free or
// out of range is reported as simfs.ErrInvalidBlock.
func (t *Table) Free(idx simfs.BlockIndex) error {
	return t.Release(idx)
}

// Release frees every block in idxs in a single table rewrite. If any index is
// out of range, already free, or listed twice, nothing is freed and
// simfs.ErrInvalidBlock is returned.
func (t *Table) Release(idxs ...simfs.BlockIndex) error {
	logger := util.GetLogger("BlockAlloc.Release")
	if len(idxs) == 0 {
		return nil
	}

	data, err := t.read()
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		if !t.inRange(idx) {
			return fmt.Errorf("%w: block %d out of range [0,%d)", simfs.ErrInvalidBlock, idx, t.numBlocks)
		}
		// a repeated index finds its own cleared flag
		if data[idx] == flagFree {
			logger.Error().Int64("block", int64(idx)).Msg("Attempt to free a free block")
			return fmt.Errorf("%w: block %d is not allocated", simfs.ErrInvalidBlock, idx)
		}
		data[idx] = flagFree
	}
	if err := t.write(data); err != nil {
		return err
	}
	logger.Trace().Interface("blocks", idxs).Msg("Released blocks")
	return nil
}

// Claim marks every block in idxs as used in a single table rewrite. It is the
// replay step of loading a saved tree, so any index that is out of range,
// already used, or listed twice is reported as simfs.ErrLoadInconsistency and
// nothing is marked.
func (t *Table) Claim(idxs ...simfs.BlockIndex) error {
	logger := util.GetLogger("BlockAlloc.Claim")
	if len(idxs) == 0 {
		return nil
	}

	data, err := t.read()
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		if !t.inRange(idx) {
			return fmt.Errorf("%w: block %d exceeds table of %d blocks", simfs.ErrLoadInconsistency, idx, t.numBlocks)
		}
		if data[idx] != flagFree {
			return fmt.Errorf("%w: block %d claimed twice", simfs.ErrLoadInconsistency, idx)
		}
		data[idx] = flagUsed
	}
	if err := t.write(data); err != nil {
		return err
	}
	logger.Debug().Int("count", len(idxs)).Msg("Claimed blocks")
	return nil
}
