package filesystem

import (
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
	"github.com/brettbedarf/simfs/mft"
)

// FileSystem is a tree of inodes whose file blocks are tracked by a
// BlockAllocator. It is meant for a single sequential caller.
type FileSystem struct {
	alloc  simfs.BlockAllocator
	nodes  *xsync.Map[simfs.InodeID, *Inode] // arena of live inodes by id
	root   simfs.InodeID                     // NoInode until the root is created
	nextID simfs.InodeID                     // next id to hand out; never decreases
}

// New returns an empty tree backed by alloc. The root is created by calling
// CreateDir with parent NoInode.
func New(alloc simfs.BlockAllocator) *FileSystem {
	return &FileSystem{
		alloc: alloc,
		nodes: xsync.NewMap[simfs.InodeID, *Inode](),
		root:  simfs.NoInode,
	}
}

// Root returns the root id or NoInode if there is no root
func (fs *FileSystem) Root() simfs.InodeID {
	return fs.root
}

// Inode returns the live inode with the given id
func (fs *FileSystem) Inode(id simfs.InodeID) (*Inode, bool) {
	return fs.nodes.Load(id)
}

// Len returns the number of live inodes
func (fs *FileSystem) Len() int {
	return fs.nodes.Size()
}

// NextID returns the id the next created inode will get
func (fs *FileSystem) NextID() simfs.InodeID {
	return fs.nextID
}

// CreateDir creates an empty directory called name as the last child of parent.
// Passing NoInode as parent creates the root, which is allowed exactly once.
func (fs *FileSystem) CreateDir(parent simfs.InodeID, name string) (simfs.InodeID, error) {
	logger := util.GetLogger("FS.CreateDir")

	if err := validateName(name, parent == simfs.NoInode); err != nil {
		return simfs.NoInode, err
	}

	if err := fs.checkID(); err != nil {
		return simfs.NoInode, err
	}

	if parent == simfs.NoInode {
		if fs.root != simfs.NoInode {
			return simfs.NoInode, fmt.Errorf("%w: root already exists", simfs.ErrInvalidParent)
		}
		id := fs.newID()
		fs.nodes.Store(id, newDirInode(id, name, simfs.NoInode))
		fs.root = id
		logger.Debug().Int32("id", int32(id)).Str("name", name).Msg("Created root directory")
		return id, nil
	}

	p, err := fs.parentDir(parent, name)
	if err != nil {
		return simfs.NoInode, err
	}

	id := fs.newID()
	fs.nodes.Store(id, newDirInode(id, name, parent))
	p.children = append(p.children, id)
	logger.Debug().Int32("id", int32(id)).Int32("parent", int32(parent)).Str("name", name).Msg("Created directory")
	return id, nil
}

// CreateFile creates a file of size bytes as the last child of parent and
// allocates ceil(size/BlockSize) blocks for it, one at a time. If any
// allocation fails, the blocks already obtained are released again and no
// inode is created.
func (fs *FileSystem) CreateFile(parent simfs.InodeID, name string, size int64) (simfs.InodeID, error) {
	logger := util.GetLogger("FS.CreateFile")

	if err := validateName(name, false); err != nil {
		return simfs.NoInode, err
	}
	if size < 0 || size > math.MaxInt32 {
		return simfs.NoInode, fmt.Errorf("%w: %d", simfs.ErrInvalidSize, size)
	}
	if parent == simfs.NoInode {
		return simfs.NoInode, fmt.Errorf("%w: file %q needs a parent directory", simfs.ErrInvalidParent, name)
	}
	p, err := fs.parentDir(parent, name)
	if err != nil {
		return simfs.NoInode, err
	}
	if err := fs.checkID(); err != nil {
		return simfs.NoInode, err
	}

	need := simfs.BlocksNeeded(size)
	blocks := make([]simfs.BlockIndex, 0, need)
	for range need {
		idx, err := fs.alloc.Allocate()
		if err != nil {
			logger.Warn().Err(err).Str("name", name).Int("needed", need).Int("obtained", len(blocks)).
				Msg("Allocation failed, rolling back")
			if len(blocks) > 0 {
				if rerr := fs.alloc.Release(blocks...); rerr != nil {
					err = multierror.Append(err, fmt.Errorf("roll back %d blocks: %w", len(blocks), rerr))
				}
			}
			return simfs.NoInode, fmt.Errorf("create file %q (%d bytes): %w", name, size, err)
		}
		blocks = append(blocks, idx)
	}

	id := fs.newID()
	fs.nodes.Store(id, newFileInode(id, name, parent, size, blocks))
	p.children = append(p.children, id)
	logger.Debug().Int32("id", int32(id)).Int32("parent", int32(parent)).Str("name", name).
		Int64("size", size).Interface("blocks", blocks).Msg("Created file")
	return id, nil
}

// FindByName returns the child of parent called name. A missing child or a
// parent that is not a directory yields (NoInode, false).
func (fs *FileSystem) FindByName(parent simfs.InodeID, name string) (simfs.InodeID, bool) {
	p, ok := fs.nodes.Load(parent)
	if !ok || !p.IsDir() {
		return simfs.NoInode, false
	}
	return fs.childByName(p, name)
}

// IsChild reports whether node is currently a child of parent
func (fs *FileSystem) IsChild(parent, node simfs.InodeID) bool {
	p, ok := fs.nodes.Load(parent)
	if !ok || !p.IsDir() {
		return false
	}
	n, ok := fs.nodes.Load(node)
	return ok && n.parent == parent && p.contains(node)
}

// DeleteFile releases every block of the file node and removes it from parent.
// If the blocks cannot be released the tree is left unchanged.
func (fs *FileSystem) DeleteFile(parent, node simfs.InodeID) error {
	logger := util.GetLogger("FS.DeleteFile")

	p, n, err := fs.verifiedChild(parent, node)
	if err != nil {
		return err
	}
	if n.IsDir() {
		return fmt.Errorf("%w: %q is a directory", simfs.ErrWrongKind, n.name)
	}

	if err := fs.alloc.Release(n.blocks...); err != nil {
		logger.Error().Err(err).Int32("id", int32(node)).Msg("Failed to release file blocks")
		return fmt.Errorf("delete file %q: %w", n.name, err)
	}
	fs.detach(p, n)
	logger.Debug().Int32("id", int32(node)).Str("name", n.name).Int("blocks", len(n.blocks)).Msg("Deleted file")
	return nil
}

// DeleteDir removes the empty directory node from parent
func (fs *FileSystem) DeleteDir(parent, node simfs.InodeID) error {
	logger := util.GetLogger("FS.DeleteDir")

	p, n, err := fs.verifiedChild(parent, node)
	if err != nil {
		return err
	}
	if !n.IsDir() {
		return fmt.Errorf("%w: %q is a file", simfs.ErrWrongKind, n.name)
	}
	if len(n.children) > 0 {
		return fmt.Errorf("%w: %q has %d children", simfs.ErrNotEmpty, n.name, len(n.children))
	}

	fs.detach(p, n)
	logger.Debug().Int32("id", int32(node)).Str("name", n.name).Msg("Deleted directory")
	return nil
}

// Path returns the slash separated path of id from the root. The root is "/".
func (fs *FileSystem) Path(id simfs.InodeID) (string, error) {
	var parts []string
	for cur := id; cur != fs.root; {
		n, ok := fs.nodes.Load(cur)
		if !ok {
			return "", fmt.Errorf("%w: no inode %d", simfs.ErrInvalidParent, cur)
		}
		parts = append(parts, n.name)
		cur = n.parent
	}
	if fs.root == simfs.NoInode {
		return "", simfs.ErrNoRoot
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(parts[i])
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}

// Lookup resolves a slash separated path relative to the root
func (fs *FileSystem) Lookup(path string) (simfs.InodeID, bool) {
	cur := fs.root
	if cur == simfs.NoInode {
		return simfs.NoInode, false
	}
	for _, name := range splitPath(path) {
		next, ok := fs.FindByName(cur, name)
		if !ok {
			return simfs.NoInode, false
		}
		cur = next
	}
	return cur, true
}

// checkID reports whether newID can hand out another id. Ids stay below
// math.MaxInt32 so nextID never wraps.
func (fs *FileSystem) checkID() error {
	if fs.nextID >= math.MaxInt32 {
		return fmt.Errorf("%w: next id %d", simfs.ErrNoIDs, fs.nextID)
	}
	return nil
}

// newID must only be called after checkID succeeded
func (fs *FileSystem) newID() simfs.InodeID {
	id := fs.nextID
	fs.nextID++
	return id
}

// parentDir loads parent and checks that a child called name can be added to it
func (fs *FileSystem) parentDir(parent simfs.InodeID, name string) (*Inode, error) {
	p, ok := fs.nodes.Load(parent)
	if !ok {
		return nil, fmt.Errorf("%w: no inode %d", simfs.ErrInvalidParent, parent)
	}
	if !p.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", simfs.ErrInvalidParent, p.name)
	}
	if _, exists := fs.childByName(p, name); exists {
		return nil, fmt.Errorf("%w: %q in %q", simfs.ErrNameCollision, name, p.name)
	}
	return p, nil
}

// verifiedChild loads parent and node and checks their relationship
func (fs *FileSystem) verifiedChild(parent, node simfs.InodeID) (*Inode, *Inode, error) {
	if !fs.IsChild(parent, node) {
		return nil, nil, fmt.Errorf("%w: inode %d in %d", simfs.ErrNotAChild, node, parent)
	}
	p, _ := fs.nodes.Load(parent)
	n, _ := fs.nodes.Load(node)
	return p, n, nil
}

func (fs *FileSystem) childByName(p *Inode, name string) (simfs.InodeID, bool) {
	for _, id := range p.children {
		if c, ok := fs.nodes.Load(id); ok && c.name == name {
			return id, true
		}
	}
	return simfs.NoInode, false
}

// detach unlinks n from p and drops it from the arena
func (fs *FileSystem) detach(p, n *Inode) {
	p.unlink(n.id)
	fs.nodes.Delete(n.id)
	n.parent = simfs.NoInode
}

// validateName rejects names that cannot be stored or resolved. Only the root
// may contain a slash. The stored name including its NUL must fit mft.MaxNameLen.
func validateName(name string, isRoot bool) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", simfs.ErrInvalidName)
	case strings.IndexByte(name, 0) >= 0:
		return fmt.Errorf("%w: %q contains NUL", simfs.ErrInvalidName, name)
	case !isRoot && strings.Contains(name, "/"):
		return fmt.Errorf("%w: %q contains a slash", simfs.ErrInvalidName, name)
	case len(name)+1 > mft.MaxNameLen:
		return fmt.Errorf("%w: %d bytes, at most %d allowed", simfs.ErrInvalidName, len(name), mft.MaxNameLen-1)
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	names := parts[:0]
	for _, p := range parts {
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}
