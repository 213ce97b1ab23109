// Package server mounts a loaded tree read-only over FUSE.
package server

import (
	"errors"
	"fmt"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/config"
	"github.com/brettbedarf/simfs/filesystem"
	"github.com/brettbedarf/simfs/internal/util"
)

// ErrRootID is returned when the tree's root does not have id 0
var ErrRootID = errors.New("root inode must have id 0 to be mounted")

// SimFs serves a FileSystem over the FUSE wire protocol
type SimFs struct {
	*filesystem.FileSystem
	table  simfs.TableInspector
	cfg    *config.Config
	server *fuse.Server
}

// New wraps fs for mounting with the mount options in cfg. table backs the
// free space reported to statfs.
func New(fs *filesystem.FileSystem, table simfs.TableInspector, cfg *config.Config) *SimFs {
	return &SimFs{
		FileSystem: fs,
		table:      table,
		cfg:        cfg,
	}
}

// Serve mounts and serves the filesystem at the given mountPoint.
// It returns once the mount is ready.
func (fs *SimFs) Serve(mountPoint string) error {
	if fs.Root() != 0 {
		return fmt.Errorf("%w: got %d", ErrRootID, fs.Root())
	}

	opts := fs.cfg.MountOptions
	raw := NewFuseRaw(fs.FileSystem, fs.table, opts)
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

// Unmount cleanly unmounts the filesystem.
func (fs *SimFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}
