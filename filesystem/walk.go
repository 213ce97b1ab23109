package filesystem

import (
	"iter"
	"slices"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
)

type walkFrame struct {
	id    simfs.InodeID
	depth int
}

// Traverse yields every inode with its depth in pre-order, children in stored
// order. The root has depth 0. The sequence may be ranged over repeatedly.
func (fs *FileSystem) Traverse() iter.Seq2[int, *Inode] {
	return func(yield func(int, *Inode) bool) {
		if fs.root == simfs.NoInode {
			return
		}
		stack := []walkFrame{{id: fs.root}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			n, ok := fs.nodes.Load(top.id)
			if !ok {
				continue
			}
			if !yield(top.depth, n) {
				return
			}
			// push in reverse so the first child is popped first
			for _, c := range slices.Backward(n.children) {
				stack = append(stack, walkFrame{id: c, depth: top.depth + 1})
			}
		}
	}
}

// Shutdown drops every inode, children before parents, and leaves the tree
// without a root. File blocks stay allocated in the table. Calling Shutdown
// on an empty tree does nothing.
func (fs *FileSystem) Shutdown() {
	logger := util.GetLogger("FS.Shutdown")
	if fs.root == simfs.NoInode {
		return
	}

	type frame struct {
		id       simfs.InodeID
		expanded bool
	}
	released := 0
	stack := []frame{{id: fs.root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n, ok := fs.nodes.Load(top.id)
		if !ok {
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.expanded && len(n.children) > 0 {
			top.expanded = true
			for _, c := range slices.Backward(n.children) {
				stack = append(stack, frame{id: c})
			}
			continue
		}
		stack = stack[:len(stack)-1]

		n.children = nil
		n.blocks = nil
		n.parent = simfs.NoInode
		fs.nodes.Delete(n.id)
		released++
	}

	logger.Debug().Int("released", released).Msg("Tree shut down")
	fs.root = simfs.NoInode
}
