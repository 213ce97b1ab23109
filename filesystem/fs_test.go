package filesystem

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/blockalloc"
	"github.com/brettbedarf/simfs/internal/mocks"
	"github.com/brettbedarf/simfs/mft"
)

// newTestTable opens and formats a table of n blocks in a temp dir
func newTestTable(t *testing.T, n int) *blockalloc.Table {
	t.Helper()
	tbl, err := blockalloc.Open(filepath.Join(t.TempDir(), "block_allocation_table"), n)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() }) // nolint:errcheck
	require.NoError(t, tbl.Format())
	return tbl
}

// newTestFS returns a tree with a root directory backed by a fresh table
func newTestFS(t *testing.T, n int) (*FileSystem, *blockalloc.Table) {
	t.Helper()
	tbl := newTestTable(t, n)
	fs := New(tbl)
	_, err := fs.CreateDir(simfs.NoInode, "/")
	require.NoError(t, err)
	return fs, tbl
}

func createDir(t *testing.T, fs *FileSystem, parent simfs.InodeID, name string) simfs.InodeID {
	t.Helper()
	id, err := fs.CreateDir(parent, name)
	require.NoError(t, err)
	return id
}

func createFile(t *testing.T, fs *FileSystem, parent simfs.InodeID, name string, size int64) simfs.InodeID {
	t.Helper()
	id, err := fs.CreateFile(parent, name, size)
	require.NoError(t, err)
	return id
}

func mustInode(t *testing.T, fs *FileSystem, id simfs.InodeID) *Inode {
	t.Helper()
	n, ok := fs.Inode(id)
	require.True(t, ok, "inode %d should exist", id)
	return n
}

// assertBitmapMatchesTree checks the used blocks of the table equal the union
// of every live file's blocks, with no block referenced twice
func assertBitmapMatchesTree(t *testing.T, fs *FileSystem, tbl *blockalloc.Table) {
	t.Helper()
	var referenced []simfs.BlockIndex
	for _, n := range fs.Traverse() {
		referenced = append(referenced, n.blocks...)
	}
	slices.Sort(referenced)
	assert.Len(t, slices.Compact(slices.Clone(referenced)), len(referenced), "block referenced twice")

	used, err := tbl.Used()
	require.NoError(t, err)
	if len(referenced) == 0 {
		assert.Empty(t, used)
		return
	}
	assert.Equal(t, referenced, used)
}

func TestNew(t *testing.T) {
	t.Parallel()

	fs := New(&mocks.MockBlockAllocator{})
	assert.Equal(t, simfs.NoInode, fs.Root())
	assert.Zero(t, fs.Len())
	assert.Equal(t, simfs.InodeID(0), fs.NextID())

	count := 0
	for range fs.Traverse() {
		count++
	}
	assert.Zero(t, count, "empty tree has nothing to traverse")
}

func TestCreateDir(t *testing.T) {
	t.Parallel()

	t.Run("root", func(t *testing.T) {
		t.Parallel()
		fs := New(&mocks.MockBlockAllocator{})
		root, err := fs.CreateDir(simfs.NoInode, "/")
		require.NoError(t, err)
		assert.Equal(t, simfs.InodeID(0), root)
		assert.Equal(t, root, fs.Root())

		n := mustInode(t, fs, root)
		assert.True(t, n.IsDir())
		assert.Equal(t, simfs.NoInode, n.Parent())
		assert.Empty(t, n.Children())
	})

	t.Run("second_root", func(t *testing.T) {
		t.Parallel()
		fs := New(&mocks.MockBlockAllocator{})
		_, err := fs.CreateDir(simfs.NoInode, "/")
		require.NoError(t, err)

		_, err = fs.CreateDir(simfs.NoInode, "other")
		assert.ErrorIs(t, err, simfs.ErrInvalidParent)
		assert.Equal(t, 1, fs.Len())
		assert.Equal(t, simfs.InodeID(1), fs.NextID(), "failed create must not consume an id")
	})

	t.Run("children_in_creation_order", func(t *testing.T) {
		t.Parallel()
		fs := New(&mocks.MockBlockAllocator{})
		root := createDir(t, fs, simfs.NoInode, "/")
		etc := createDir(t, fs, root, "etc")
		usr := createDir(t, fs, root, "usr")
		bin := createDir(t, fs, usr, "bin")

		assert.Equal(t, []simfs.InodeID{etc, usr}, mustInode(t, fs, root).Children())
		assert.Equal(t, []simfs.InodeID{bin}, mustInode(t, fs, usr).Children())
		assert.Equal(t, usr, mustInode(t, fs, bin).Parent())
		assert.Equal(t, []simfs.InodeID{0, 1, 2, 3}, []simfs.InodeID{root, etc, usr, bin})
	})

	t.Run("invalid_parent", func(t *testing.T) {
		t.Parallel()
		fs, _ := newTestFS(t, 4)
		file := createFile(t, fs, fs.Root(), "f", 1)

		_, err := fs.CreateDir(file, "sub")
		assert.ErrorIs(t, err, simfs.ErrInvalidParent)
		_, err = fs.CreateDir(42, "sub")
		assert.ErrorIs(t, err, simfs.ErrInvalidParent)
	})

	t.Run("invalid_names", func(t *testing.T) {
		t.Parallel()
		fs := New(&mocks.MockBlockAllocator{})
		_, err := fs.CreateDir(simfs.NoInode, "")
		assert.ErrorIs(t, err, simfs.ErrInvalidName)

		root := createDir(t, fs, simfs.NoInode, "/")
		for _, name := range []string{"", "a/b", "nul\x00"} {
			_, err := fs.CreateDir(root, name)
			assert.ErrorIs(t, err, simfs.ErrInvalidName, "name %q", name)
		}
		assert.Zero(t, mustInode(t, fs, root).NumChildren())
	})
}

// create_dir twice with the same name fails and leaves one child
func TestCreateDir_DuplicateName(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t, 16)
	root := fs.Root()
	etc := createDir(t, fs, root, "etc")

	_, err := fs.CreateDir(root, "etc")
	require.ErrorIs(t, err, simfs.ErrNameCollision)

	children := mustInode(t, fs, root).Children()
	require.Len(t, children, 1)
	assert.Equal(t, etc, children[0])
	assert.Equal(t, "etc", mustInode(t, fs, children[0]).Name())
}

func TestCreateFile(t *testing.T) {
	t.Parallel()

	t.Run("kernel_takes_five_blocks", func(t *testing.T) {
		t.Parallel()
		fs, tbl := newTestFS(t, 16)

		id := createFile(t, fs, fs.Root(), "kernel", 20000)
		n := mustInode(t, fs, id)
		assert.False(t, n.IsDir())
		assert.Equal(t, int64(20000), n.Size())
		assert.Equal(t, []simfs.BlockIndex{0, 1, 2, 3, 4}, n.Blocks())

		free, err := tbl.NumFree()
		require.NoError(t, err)
		assert.Equal(t, 11, free)
		assertBitmapMatchesTree(t, fs, tbl)
	})

	t.Run("block_counts", func(t *testing.T) {
		t.Parallel()
		fs, tbl := newTestFS(t, 16)
		sizes := map[string]int64{"empty": 0, "one": 1, "exact": 4096, "over": 4097}
		want := map[string]int{"empty": 0, "one": 1, "exact": 1, "over": 2}
		for name, size := range sizes {
			id := createFile(t, fs, fs.Root(), name, size)
			assert.Len(t, mustInode(t, fs, id).Blocks(), want[name], name)
		}
		assertBitmapMatchesTree(t, fs, tbl)
	})

	t.Run("duplicate_name", func(t *testing.T) {
		t.Parallel()
		fs, tbl := newTestFS(t, 16)
		createFile(t, fs, fs.Root(), "hosts", 200)

		_, err := fs.CreateFile(fs.Root(), "hosts", 200)
		require.ErrorIs(t, err, simfs.ErrNameCollision)
		assert.Equal(t, 1, mustInode(t, fs, fs.Root()).NumChildren())

		free, err := tbl.NumFree()
		require.NoError(t, err)
		assert.Equal(t, 15, free, "collision must not allocate")
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		t.Parallel()
		fs, _ := newTestFS(t, 4)
		file := createFile(t, fs, fs.Root(), "f", 1)

		_, err := fs.CreateFile(fs.Root(), "neg", -1)
		assert.ErrorIs(t, err, simfs.ErrInvalidSize)
		_, err = fs.CreateFile(fs.Root(), "big", 1<<31)
		assert.ErrorIs(t, err, simfs.ErrInvalidSize)
		_, err = fs.CreateFile(file, "g", 1)
		assert.ErrorIs(t, err, simfs.ErrInvalidParent)
		_, err = fs.CreateFile(simfs.NoInode, "g", 1)
		assert.ErrorIs(t, err, simfs.ErrInvalidParent)
		_, err = fs.CreateFile(fs.Root(), "a/b", 1)
		assert.ErrorIs(t, err, simfs.ErrInvalidName)
	})

	t.Run("out_of_space_rolls_back", func(t *testing.T) {
		t.Parallel()
		fs, tbl := newTestFS(t, 4)
		createFile(t, fs, fs.Root(), "small", 4096)
		next := fs.NextID()

		_, err := fs.CreateFile(fs.Root(), "huge", 4*4096)
		require.ErrorIs(t, err, simfs.ErrOutOfSpace)

		_, found := fs.FindByName(fs.Root(), "huge")
		assert.False(t, found)
		assert.Equal(t, next, fs.NextID())
		used, err := tbl.Used()
		require.NoError(t, err)
		assert.Equal(t, []simfs.BlockIndex{0}, used, "partial allocation must be released")
		assertBitmapMatchesTree(t, fs, tbl)
	})
}

func TestCreateFile_RollbackWithMock(t *testing.T) {
	t.Parallel()

	t.Run("releases_obtained_blocks", func(t *testing.T) {
		t.Parallel()
		alloc := &mocks.MockBlockAllocator{}
		next := simfs.BlockIndex(7)
		alloc.On("Allocate").Return(func() simfs.BlockIndex {
			idx := next
			next++
			return idx
		}, nil).Twice()
		alloc.On("Allocate").Return(nil, simfs.ErrOutOfSpace).Once()
		alloc.On("Release", []simfs.BlockIndex{7, 8}).Return(nil).Once()

		fs := New(alloc)
		root := createDir(t, fs, simfs.NoInode, "/")
		_, err := fs.CreateFile(root, "f", 3*4096)
		require.ErrorIs(t, err, simfs.ErrOutOfSpace)
		assert.Zero(t, mustInode(t, fs, root).NumChildren())
		alloc.AssertExpectations(t)
	})

	t.Run("first_allocation_fails", func(t *testing.T) {
		t.Parallel()
		alloc := &mocks.MockBlockAllocator{}
		alloc.On("Allocate").Return(nil, simfs.ErrIO).Once()

		fs := New(alloc)
		root := createDir(t, fs, simfs.NoInode, "/")
		_, err := fs.CreateFile(root, "f", 1)
		require.ErrorIs(t, err, simfs.ErrIO)
		alloc.AssertExpectations(t)
		alloc.AssertNotCalled(t, "Release", mock.Anything)
	})

	t.Run("rollback_failure_is_reported", func(t *testing.T) {
		t.Parallel()
		alloc := &mocks.MockBlockAllocator{}
		alloc.On("Allocate").Return(simfs.BlockIndex(3), nil).Once()
		alloc.On("Allocate").Return(nil, simfs.ErrOutOfSpace).Once()
		alloc.On("Release", []simfs.BlockIndex{3}).Return(simfs.ErrIO).Once()

		fs := New(alloc)
		root := createDir(t, fs, simfs.NoInode, "/")
		_, err := fs.CreateFile(root, "f", 2*4096)
		require.Error(t, err)
		assert.ErrorIs(t, err, simfs.ErrOutOfSpace)
		assert.ErrorIs(t, err, simfs.ErrIO)
		alloc.AssertExpectations(t)
	})
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t, 8)
	root := fs.Root()
	etc := createDir(t, fs, root, "etc")
	hosts := createFile(t, fs, etc, "hosts", 200)

	id, ok := fs.FindByName(root, "etc")
	assert.True(t, ok)
	assert.Equal(t, etc, id)

	id, ok = fs.FindByName(etc, "hosts")
	assert.True(t, ok)
	assert.Equal(t, hosts, id)

	id, ok = fs.FindByName(root, "hosts")
	assert.False(t, ok, "lookup is not recursive")
	assert.Equal(t, simfs.NoInode, id)

	_, ok = fs.FindByName(hosts, "x")
	assert.False(t, ok)
	_, ok = fs.FindByName(99, "etc")
	assert.False(t, ok)
}

func TestIsChild(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t, 8)
	root := fs.Root()
	a := createDir(t, fs, root, "a")
	b := createFile(t, fs, a, "b", 1)

	assert.True(t, fs.IsChild(root, a))
	assert.True(t, fs.IsChild(a, b))
	assert.False(t, fs.IsChild(root, b), "grandchild")
	assert.False(t, fs.IsChild(b, a))
	assert.False(t, fs.IsChild(root, root))
	assert.False(t, fs.IsChild(root, 99))
}

// Deleting a file frees its block for the next allocation
func TestDeleteFile(t *testing.T) {
	t.Parallel()

	fs, tbl := newTestFS(t, 16)
	root := fs.Root()
	createFile(t, fs, root, "pad", 4096)
	a := createDir(t, fs, root, "a")
	b := createFile(t, fs, a, "b", 1)
	freed := mustInode(t, fs, b).Blocks()[0]

	require.NoError(t, fs.DeleteFile(a, b))

	assert.Zero(t, mustInode(t, fs, a).NumChildren())
	_, ok := fs.Inode(b)
	assert.False(t, ok)
	used, err := tbl.IsUsed(freed)
	require.NoError(t, err)
	assert.False(t, used)
	assertBitmapMatchesTree(t, fs, tbl)

	idx, err := tbl.Allocate()
	require.NoError(t, err)
	assert.Equal(t, freed, idx)
}

func TestDeleteFile_Errors(t *testing.T) {
	t.Parallel()

	fs, tbl := newTestFS(t, 16)
	root := fs.Root()
	a := createDir(t, fs, root, "a")
	f := createFile(t, fs, a, "f", 5000)

	assert.ErrorIs(t, fs.DeleteFile(root, f), simfs.ErrNotAChild)
	assert.ErrorIs(t, fs.DeleteFile(root, a), simfs.ErrWrongKind)
	assert.ErrorIs(t, fs.DeleteFile(a, 99), simfs.ErrNotAChild)

	// a table failure leaves the tree untouched
	require.NoError(t, tbl.Format())
	err := fs.DeleteFile(a, f)
	require.ErrorIs(t, err, simfs.ErrInvalidBlock)
	assert.True(t, fs.IsChild(a, f))
	assert.Len(t, mustInode(t, fs, f).Blocks(), 2)
}

func TestDeleteFile_PreservesSiblingOrder(t *testing.T) {
	t.Parallel()

	fs, tbl := newTestFS(t, 16)
	root := fs.Root()
	x := createFile(t, fs, root, "x", 1)
	y := createFile(t, fs, root, "y", 1)
	z := createFile(t, fs, root, "z", 1)

	require.NoError(t, fs.DeleteFile(root, y))
	assert.Equal(t, []simfs.InodeID{x, z}, mustInode(t, fs, root).Children())
	assertBitmapMatchesTree(t, fs, tbl)

	// ids are never reused
	w := createFile(t, fs, root, "y", 1)
	assert.Equal(t, z+1, w)
}

func TestDeleteDir(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t, 16)
	root := fs.Root()
	usr := createDir(t, fs, root, "usr")
	bin := createDir(t, fs, usr, "bin")
	ls := createFile(t, fs, bin, "ls", 14322)

	err := fs.DeleteDir(root, usr)
	require.ErrorIs(t, err, simfs.ErrNotEmpty)
	assert.True(t, fs.IsChild(root, usr))
	assert.True(t, fs.IsChild(usr, bin))

	assert.ErrorIs(t, fs.DeleteDir(bin, ls), simfs.ErrWrongKind)
	assert.ErrorIs(t, fs.DeleteDir(root, bin), simfs.ErrNotAChild)
	assert.ErrorIs(t, fs.DeleteDir(simfs.NoInode, root), simfs.ErrNotAChild, "root is nobody's child")

	require.NoError(t, fs.DeleteFile(bin, ls))
	require.NoError(t, fs.DeleteDir(usr, bin))
	require.NoError(t, fs.DeleteDir(root, usr))
	assert.Equal(t, 1, fs.Len())
	assert.Zero(t, mustInode(t, fs, root).NumChildren())
}

func TestDeleteFile_ReleasesWithMock(t *testing.T) {
	t.Parallel()

	alloc := &mocks.MockBlockAllocator{}
	alloc.On("Allocate").Return(simfs.BlockIndex(5), nil).Once()
	alloc.On("Allocate").Return(simfs.BlockIndex(9), nil).Once()
	releaseErr := errors.New("disk gone")
	alloc.On("Release", []simfs.BlockIndex{5, 9}).Return(releaseErr).Once()
	alloc.On("Release", []simfs.BlockIndex{5, 9}).Return(nil).Once()

	fs := New(alloc)
	root := createDir(t, fs, simfs.NoInode, "/")
	f := createFile(t, fs, root, "f", 8000)

	err := fs.DeleteFile(root, f)
	require.ErrorIs(t, err, releaseErr)
	assert.True(t, fs.IsChild(root, f))

	require.NoError(t, fs.DeleteFile(root, f))
	assert.False(t, fs.IsChild(root, f))
	alloc.AssertExpectations(t)
}

func TestPathAndLookup(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t, 16)
	root := fs.Root()
	usr := createDir(t, fs, root, "usr")
	local := createDir(t, fs, usr, "local")
	gcc := createFile(t, fs, local, "gcc", 12623)

	p, err := fs.Path(gcc)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/gcc", p)
	p, err = fs.Path(root)
	require.NoError(t, err)
	assert.Equal(t, "/", p)
	_, err = fs.Path(99)
	assert.Error(t, err)

	for path, want := range map[string]simfs.InodeID{
		"":               root,
		"/":              root,
		"usr/local":      local,
		"/usr/local/gcc": gcc,
		"usr//local/":    local,
	} {
		got, ok := fs.Lookup(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, ok := fs.Lookup("usr/missing")
	assert.False(t, ok)
	_, ok = fs.Lookup("usr/local/gcc/x")
	assert.False(t, ok)
}

func TestCreate_NameLength(t *testing.T) {
	t.Parallel()
	fs, tbl := newTestFS(t, 4)
	longest := strings.Repeat("n", mft.MaxNameLen-1)
	tooLong := longest + "n"

	createDir(t, fs, fs.Root(), longest)
	_, err := fs.CreateDir(fs.Root(), tooLong)
	assert.ErrorIs(t, err, simfs.ErrInvalidName)
	_, err = fs.CreateFile(fs.Root(), tooLong, 1)
	assert.ErrorIs(t, err, simfs.ErrInvalidName)

	used, err := tbl.Used()
	require.NoError(t, err)
	assert.Empty(t, used, "rejected name must not allocate")
	assert.Equal(t, 2, fs.Len())
}

func TestCreate_IDsExhausted(t *testing.T) {
	t.Parallel()
	fs, tbl := newTestFS(t, 4)
	fs.nextID = math.MaxInt32 - 1

	last := createDir(t, fs, fs.Root(), "last")
	assert.Equal(t, simfs.InodeID(math.MaxInt32-1), last)

	_, err := fs.CreateDir(fs.Root(), "d")
	assert.ErrorIs(t, err, simfs.ErrNoIDs)
	_, err = fs.CreateFile(fs.Root(), "f", 2*simfs.BlockSize)
	assert.ErrorIs(t, err, simfs.ErrNoIDs)

	assert.Equal(t, simfs.InodeID(math.MaxInt32), fs.NextID(), "counter must not wrap")
	used, err := tbl.Used()
	require.NoError(t, err)
	assert.Empty(t, used, "exhausted ids must not allocate")
	for _, n := range fs.Traverse() {
		assert.GreaterOrEqual(t, n.ID(), simfs.InodeID(0))
	}
}
