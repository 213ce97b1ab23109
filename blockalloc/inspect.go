package blockalloc

import (
	"bufio"
	"fmt"
	"io"

	"github.com/brettbedarf/simfs"
)

// dumpRowLen is the number of flags printed per Dump line
const dumpRowLen = 32

// NumFree returns the number of free blocks
func (t *Table) NumFree() (int, error) {
	data, err := t.read()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, flag := range data {
		if flag == flagFree {
			n++
		}
	}
	return n, nil
}

// IsUsed reports whether block idx is allocated
func (t *Table) IsUsed(idx simfs.BlockIndex) (bool, error) {
	if !t.inRange(idx) {
		return false, fmt.Errorf("%w: block %d out of range [0,%d)", simfs.ErrInvalidBlock, idx, t.numBlocks)
	}
	data, err := t.read()
	if err != nil {
		return false, err
	}
	return data[idx] != flagFree, nil
}

// Used returns the indices of all allocated blocks in ascending order
func (t *Table) Used() ([]simfs.BlockIndex, error) {
	data, err := t.read()
	if err != nil {
		return nil, err
	}
	used := make([]simfs.BlockIndex, 0)
	for i, flag := range data {
		if flag != flagFree {
			used = append(used, simfs.BlockIndex(i))
		}
	}
	return used, nil
}

// Dump writes the table flags to w, one 0/1 per block, prefixed by the index
// of the first block on each line.
func (t *Table) Dump(w io.Writer) error {
	data, err := t.read()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Block allocation table %s (%d blocks)\n", t.path, t.numBlocks)
	for row := 0; row < len(data); row += dumpRowLen {
		end := min(row+dumpRowLen, len(data))
		fmt.Fprintf(bw, "%6d ", row)
		for _, flag := range data[row:end] {
			if flag == flagFree {
				bw.WriteByte('0')
			} else {
				bw.WriteByte('1')
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
