package simfs

// BlockSize is the number of bytes in one simulated disk block.
const BlockSize = 4096

// InodeID identifies an inode. Persisted as a 4-byte signed integer.
type InodeID int32

// NoInode is the parent of the root and the result of a failed lookup
const NoInode InodeID = -1

// BlockIndex is the position of a block in the allocation table.
// Persisted as an 8-byte integer.
type BlockIndex int64

// NodeKind valid kinds are KindFile and KindDirectory
type NodeKind uint8

const (
	KindFile NodeKind = iota
	KindDirectory
)

func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	default:
		return "unknown"
	}
}

// BlocksNeeded returns how many blocks a file of size bytes occupies
func BlocksNeeded(size int64) int {
	blocks := size / BlockSize
	if size%BlockSize != 0 {
		blocks++
	}
	return int(blocks)
}
