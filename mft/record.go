// Package mft encodes and decodes master file table records.
//
// A master file table is a stream of inode records in pre-order depth-first
// order. All integers are little-endian.
//
//	id            int32
//	name_len      int32   includes the NUL terminator
//	name          name_len bytes
//	is_directory  1 byte  0 = file, nonzero = directory
//	directory:
//	  num_children  int32
//	  child_id      num_children x int64
//	file:
//	  filesize      int32
//	  num_blocks    int32
//	  block_index   num_blocks x int64
//
// The child records of a directory follow it directly in the stream. This
// package only handles single records; rebuilding the tree from the record
// order is up to the caller. The child id table is carried for compatibility
// and is never used to link records.
package mft

import (
	"github.com/brettbedarf/simfs"
)

// Limits enforced by both Writer and Reader. The Reader relies on them so a
// corrupt count cannot trigger a huge allocation.
const (
	MaxNameLen = 4096 // name_len, NUL included
	MaxEntries = 1 << 24
)

// Record is one decoded inode entry
type Record struct {
	ID    simfs.InodeID
	Name  string
	IsDir bool

	// ChildIDs lists the ids of the directory's children as written by the
	// saver. Informational only.
	ChildIDs []simfs.InodeID

	Size   int64
	Blocks []simfs.BlockIndex
}

// NumChildren returns how many child records follow a directory record
func (r *Record) NumChildren() int {
	return len(r.ChildIDs)
}
