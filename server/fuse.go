package server

import (
	"math"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/config"
	"github.com/brettbedarf/simfs/filesystem"
	"github.com/brettbedarf/simfs/internal/util"
	"github.com/brettbedarf/simfs/mft"
)

// FuseRaw implements the low-level FUSE wire protocol for a read-only view of
// a tree. Node ids are inode ids plus fuse.FUSE_ROOT_ID, so the root inode must
// have id 0. File contents read as zeros since only block numbers are stored.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs     *filesystem.FileSystem
	table  simfs.TableInspector
	opts   config.MountOptions
	server *fuse.Server
}

func NewFuseRaw(fs *filesystem.FileSystem, table simfs.TableInspector, opts config.MountOptions) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		table:         table,
		opts:          opts,
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// Access allows every read; the tree cannot be modified through the mount
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	if input.Mask&2 != 0 { // W_OK
		return fuse.Status(syscall.EROFS)
	}
	return fuse.OK
}

// Lookup resolves name inside the directory header.NodeId
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	parent, ok := r.inode(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if !parent.IsDir() {
		return fuse.ENOTDIR
	}
	id, ok := r.fs.FindByName(parent.ID(), name)
	if !ok {
		return fuse.ENOENT
	}
	child, ok := r.fs.Inode(id)
	if !ok {
		return fuse.ENOENT
	}

	out.NodeId = nodeID(id)
	out.Attr = child.Attr()
	out.SetEntryTimeout(seconds(r.opts.EntryTimeout))
	out.SetAttrTimeout(seconds(r.opts.AttrTimeout))
	return fuse.OK
}

// Forget is a no-op since node ids are derived from inode ids
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	n, ok := r.inode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	out.Attr = n.Attr()
	out.SetTimeout(seconds(r.opts.AttrTimeout))
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n, ok := r.inode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if !n.IsDir() {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

// ReadDir lists ".", ".." and the children in stored order. input.Offset is
// the index of the next entry to return.
func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Trace().Uint64("node", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	dir, ok := r.inode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if !dir.IsDir() {
		return fuse.ENOTDIR
	}

	parentIno := input.NodeId
	if dir.Parent() != simfs.NoInode {
		parentIno = nodeID(dir.Parent())
	}
	entries := []fuse.DirEntry{
		{Name: ".", Mode: syscall.S_IFDIR, Ino: input.NodeId},
		{Name: "..", Mode: syscall.S_IFDIR, Ino: parentIno},
	}
	for _, id := range dir.Children() {
		if c, ok := r.fs.Inode(id); ok {
			entries = append(entries, fuse.DirEntry{Name: c.Name(), Mode: c.Attr().Mode, Ino: nodeID(id)})
		}
	}

	for i := int(input.Offset); i < len(entries); i++ {
		if !out.AddDirEntry(entries[i]) {
			// buffer full; the kernel calls again with a later offset
			break
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {}

// Open only allows read-only access to files
func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n, ok := r.inode(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if n.IsDir() {
		return fuse.EISDIR
	}
	if input.Flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return fuse.Status(syscall.EROFS)
	}
	out.OpenFlags = fuse.FOPEN_KEEP_CACHE
	return fuse.OK
}

// Read returns zeros up to the file size
func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	n, ok := r.inode(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}
	if n.IsDir() {
		return nil, fuse.EISDIR
	}

	size := uint64(n.Size())
	if input.Offset >= size {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := min(input.Offset+uint64(input.Size), size, input.Offset+uint64(len(buf)))
	data := buf[:end-input.Offset]
	clear(data)
	return fuse.ReadResultData(data), fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {}

// StatFs reports the size and free blocks of the allocation table. Free
// inodes are the ids the tree can still hand out.
func (r *FuseRaw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	logger := util.GetLogger("Fuse.StatFs")

	free, err := r.table.NumFree()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read block allocation table")
		return fuse.EIO
	}
	out.Bsize = simfs.BlockSize
	out.Frsize = simfs.BlockSize
	out.Blocks = uint64(r.table.NumBlocks())
	out.Bfree = uint64(free)
	out.Bavail = uint64(free)
	out.Files = uint64(r.fs.Len())
	out.Ffree = uint64(math.MaxInt32 - int64(r.fs.NextID()))
	out.NameLen = mft.MaxNameLen - 1
	return fuse.OK
}

// inode maps a fuse node id to a live inode
func (r *FuseRaw) inode(node uint64) (*filesystem.Inode, bool) {
	if node < fuse.FUSE_ROOT_ID {
		return nil, false
	}
	return r.fs.Inode(simfs.InodeID(node - fuse.FUSE_ROOT_ID))
}

func nodeID(id simfs.InodeID) uint64 {
	return uint64(id) + fuse.FUSE_ROOT_ID
}

func seconds(s float64) time.Duration {
	return time.Duration(max(s, 0) * float64(time.Second))
}
