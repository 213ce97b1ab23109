package simfs

import "io"

// BlockAllocator tracks which blocks of the simulated disk are referenced by a file.
// Every method is synchronous and leaves the table untouched when it returns an error.
type BlockAllocator interface {
	// Format resets every block to free
	Format() error

	// Allocate marks the lowest-indexed free block as used and returns it.
	// Returns ErrOutOfSpace when no block is free.
	Allocate() (BlockIndex, error)

	// Free marks a single used block as free.
	// Freeing a free or out-of-range block returns ErrInvalidBlock.
	Free(idx BlockIndex) error

	// Release frees all idxs at once or none of them
	Release(idxs ...BlockIndex) error

	// Claim marks all idxs as used at once or none of them. Used to replay
	// a persisted tree into a freshly formatted table.
	Claim(idxs ...BlockIndex) error
}

// TableInspector exposes the read-only side of a block allocation table
type TableInspector interface {
	NumBlocks() int
	NumFree() (int, error)
	IsUsed(idx BlockIndex) (bool, error)
	Used() ([]BlockIndex, error)
	Dump(w io.Writer) error
}

// NodeInfo provides read-only access to an inode for external consumers
type NodeInfo interface {
	ID() InodeID
	Name() string
	Kind() NodeKind
	IsDir() bool
	Parent() InodeID
	Size() int64
	Blocks() []BlockIndex
}
