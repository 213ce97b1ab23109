package filesystem

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// Debug prints the tree one inode per line, indented two spaces per level.
// Directories print as "name (id N)", files as "name (id N size S blocks b0 b1 )".
func (fs *FileSystem) Debug(w io.Writer) error {
	var b strings.Builder
	for depth, n := range fs.Traverse() {
		b.WriteString(strings.Repeat("  ", depth))
		if n.IsDir() {
			fmt.Fprintf(&b, "%s (id %d)\n", n.name, n.id)
			continue
		}
		fmt.Fprintf(&b, "%s (id %d size %db blocks ", n.name, n.id, n.size)
		for _, idx := range n.blocks {
			fmt.Fprintf(&b, "%d ", idx)
		}
		b.WriteString(")\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// List prints a long listing of every inode: mode, inode number, human
// readable size, block count and full path.
func (fs *FileSystem) List(w io.Writer) error {
	for _, n := range fs.Traverse() {
		path, err := fs.Path(n.id)
		if err != nil {
			return err
		}
		attr := n.Attr()
		mode := os.FileMode(attr.Mode & 0o777)
		if n.IsDir() {
			mode |= os.ModeDir
		}
		if _, err := fmt.Fprintf(w, "%s %6d %8s %4d %s\n",
			mode, attr.Ino, humanize.IBytes(attr.Size), len(n.blocks), path); err != nil {
			return err
		}
	}
	return nil
}
