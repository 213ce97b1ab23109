package filesystem

import (
	"slices"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/simfs"
)

// Default permission bits reported by Inode.Attr
const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// Inode is a file or directory in the tree. Parent and children are stored as
// ids into the owning FileSystem's arena, never as pointers.
type Inode struct {
	id       simfs.InodeID
	name     string
	kind     simfs.NodeKind
	parent   simfs.InodeID      // NoInode for the root
	children []simfs.InodeID    // directories only, in creation order
	size     int64              // files only
	blocks   []simfs.BlockIndex // files only, len == BlocksNeeded(size)
}

var _ simfs.NodeInfo = (*Inode)(nil)

func newDirInode(id simfs.InodeID, name string, parent simfs.InodeID) *Inode {
	return &Inode{
		id:       id,
		name:     name,
		kind:     simfs.KindDirectory,
		parent:   parent,
		children: make([]simfs.InodeID, 0),
	}
}

func newFileInode(id simfs.InodeID, name string, parent simfs.InodeID, size int64, blocks []simfs.BlockIndex) *Inode {
	return &Inode{
		id:     id,
		name:   name,
		kind:   simfs.KindFile,
		parent: parent,
		size:   size,
		blocks: blocks,
	}
}

func (n *Inode) ID() simfs.InodeID {
	return n.id
}

func (n *Inode) Name() string {
	return n.name
}

func (n *Inode) Kind() simfs.NodeKind {
	return n.kind
}

func (n *Inode) IsDir() bool {
	return n.kind == simfs.KindDirectory
}

// Parent returns the parent id; NoInode for the root
func (n *Inode) Parent() simfs.InodeID {
	return n.parent
}

// Children returns a copy of the child ids in stored order
func (n *Inode) Children() []simfs.InodeID {
	return slices.Clone(n.children)
}

// NumChildren returns the number of children; 0 for files
func (n *Inode) NumChildren() int {
	return len(n.children)
}

// Size returns the file size in bytes; 0 for directories
func (n *Inode) Size() int64 {
	return n.size
}

// Blocks returns a copy of the file's block indices
func (n *Inode) Blocks() []simfs.BlockIndex {
	return slices.Clone(n.blocks)
}

// Attr returns the inode as fuse attributes
func (n *Inode) Attr() fuse.Attr {
	attr := fuse.Attr{
		// fuse reserves 0; the root (id 0) maps to FUSE_ROOT_ID
		Ino:     uint64(n.id) + fuse.FUSE_ROOT_ID,
		Size:    uint64(n.size),
		Blocks:  uint64(len(n.blocks)) * (simfs.BlockSize / 512),
		Nlink:   1,
		Blksize: simfs.BlockSize,
	}
	if n.IsDir() {
		attr.Mode = syscall.S_IFDIR | dirPerms
		attr.Nlink = 2
	} else {
		attr.Mode = syscall.S_IFREG | filePerms
	}
	return attr
}

// contains reports whether id is one of the directory's children
func (n *Inode) contains(id simfs.InodeID) bool {
	return slices.Contains(n.children, id)
}

// unlink removes id from children preserving the order of the rest
func (n *Inode) unlink(id simfs.InodeID) {
	n.children = slices.DeleteFunc(n.children, func(c simfs.InodeID) bool { return c == id })
}
