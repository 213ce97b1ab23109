package filesystem

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/facebookgo/atomicfile"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
	"github.com/brettbedarf/simfs/mft"
)

// Save writes the whole tree to the master file table at path. The file is
// replaced atomically so a failed save leaves any previous table intact.
func (fs *FileSystem) Save(path string) error {
	logger := util.GetLogger("FS.Save")

	if fs.root == simfs.NoInode {
		return simfs.ErrNoRoot
	}

	f, err := atomicfile.New(path, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", simfs.ErrIO, path, err)
	}
	n, err := fs.encode(f)
	if err != nil {
		f.Abort() // nolint:errcheck
		logger.Error().Err(err).Str("path", path).Msg("Failed to write master file table")
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: commit %s: %w", simfs.ErrIO, path, err)
	}

	logger.Info().Str("path", path).Int("records", n).Msg("Saved master file table")
	return nil
}

// encode writes one record per inode in pre-order and returns the record count
func (fs *FileSystem) encode(w io.Writer) (int, error) {
	mw := mft.NewWriter(w)
	count := 0
	for _, n := range fs.Traverse() {
		if err := mw.Write(n.record()); err != nil {
			return count, err
		}
		count++
	}
	return count, mw.Flush()
}

func (n *Inode) record() *mft.Record {
	return &mft.Record{
		ID:       n.id,
		Name:     n.name,
		IsDir:    n.IsDir(),
		ChildIDs: n.children,
		Size:     n.size,
		Blocks:   n.blocks,
	}
}

// Load rebuilds a tree from the master file table at path and replays its
// block usage into alloc. The allocator is formatted first, then every block
// referenced by a loaded file is claimed in a single batch. Nothing is
// returned unless both the table and the replay succeed.
func Load(path string, alloc simfs.BlockAllocator) (*FileSystem, error) {
	logger := util.GetLogger("FS.Load")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", simfs.ErrIO, path, err)
	}
	defer f.Close()

	fs, claims, err := decode(f, alloc)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to read master file table")
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if err := alloc.Format(); err != nil {
		return nil, fmt.Errorf("load %s: format table: %w", path, err)
	}
	if err := alloc.Claim(claims...); err != nil {
		logger.Error().Err(err).Int("blocks", len(claims)).Msg("Failed to replay block usage")
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	logger.Info().Str("path", path).Int("nodes", fs.Len()).Int("blocks", len(claims)).
		Int32("next_id", int32(fs.nextID)).Msg("Loaded master file table")
	return fs, nil
}

// pending is a directory whose child records have not all been read yet
type pending struct {
	dir       *Inode
	remaining int
}

// decode reads records and links each one to the innermost directory still
// expecting children. Child ids stored in directory records are not used for
// linking. It returns the tree and every block its files reference.
func decode(r io.Reader, alloc simfs.BlockAllocator) (*FileSystem, []simfs.BlockIndex, error) {
	fs := New(alloc)
	mr := mft.NewReader(r)

	rec, err := mr.Next()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty table", simfs.ErrCorrupt)
	}
	if err != nil {
		return nil, nil, err
	}
	if !rec.IsDir {
		return nil, nil, fmt.Errorf("%w: root %q is not a directory", simfs.ErrCorrupt, rec.Name)
	}
	if err := validateName(rec.Name, true); err != nil {
		return nil, nil, fmt.Errorf("%w: root: %w", simfs.ErrCorrupt, err)
	}

	root := newDirInode(rec.ID, rec.Name, simfs.NoInode)
	fs.nodes.Store(root.id, root)
	fs.root = root.id
	maxID := root.id

	var stack []pending
	if rec.NumChildren() > 0 {
		stack = append(stack, pending{dir: root, remaining: rec.NumChildren()})
	}

	var claims []simfs.BlockIndex
	for {
		start := mr.Offset()
		rec, err := mr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(stack) == 0 {
			return nil, nil, fmt.Errorf("%w: trailing record %d at offset %d", simfs.ErrCorrupt, rec.ID, start)
		}

		top := &stack[len(stack)-1]
		parent := top.dir
		top.remaining--
		if top.remaining == 0 {
			stack = stack[:len(stack)-1]
		}

		if _, dup := fs.nodes.Load(rec.ID); dup {
			return nil, nil, fmt.Errorf("%w: duplicate id %d at offset %d", simfs.ErrCorrupt, rec.ID, start)
		}
		if err := validateName(rec.Name, false); err != nil {
			return nil, nil, fmt.Errorf("%w: record %d: %w", simfs.ErrCorrupt, rec.ID, err)
		}
		if _, exists := fs.childByName(parent, rec.Name); exists {
			return nil, nil, fmt.Errorf("%w: duplicate name %q in %q", simfs.ErrCorrupt, rec.Name, parent.name)
		}

		var n *Inode
		if rec.IsDir {
			n = newDirInode(rec.ID, rec.Name, parent.id)
		} else {
			n = newFileInode(rec.ID, rec.Name, parent.id, rec.Size, rec.Blocks)
			claims = append(claims, rec.Blocks...)
		}
		fs.nodes.Store(n.id, n)
		parent.children = append(parent.children, n.id)
		maxID = max(maxID, n.id)

		if rec.IsDir && rec.NumChildren() > 0 {
			stack = append(stack, pending{dir: n, remaining: rec.NumChildren()})
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, nil, fmt.Errorf("%w: %q is missing %d children", simfs.ErrCorrupt, top.dir.name, top.remaining)
	}

	if maxID == math.MaxInt32 {
		return nil, nil, fmt.Errorf("%w: id %d leaves no id for new inodes", simfs.ErrCorrupt, maxID)
	}
	fs.nextID = maxID + 1
	return fs, claims, nil
}
