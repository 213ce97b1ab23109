package simfs

import "errors"

// Tree errors
var (
	ErrNameCollision = errors.New("name already exists in directory")
	ErrInvalidParent = errors.New("invalid parent")
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidSize   = errors.New("invalid file size")
	ErrNotAChild     = errors.New("node is not a child of parent")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrWrongKind     = errors.New("wrong node kind")
	ErrNoRoot        = errors.New("tree has no root")
	ErrNoIDs         = errors.New("inode ids exhausted")
)

// Block allocation table errors
var (
	ErrOutOfSpace   = errors.New("out of space")
	ErrInvalidBlock = errors.New("invalid block")
	ErrIO           = errors.New("table I/O error")
	ErrTableSize    = errors.New("table size mismatch")
)

// Master file table errors
var (
	ErrCorrupt           = errors.New("corrupt master file table")
	ErrLoadInconsistency = errors.New("persisted blocks do not fit the allocation table")
)
