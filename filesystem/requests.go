package filesystem

import (
	"fmt"
	"path"
	"strings"

	"github.com/brettbedarf/simfs"
	"github.com/brettbedarf/simfs/internal/util"
)

// AddDirNode creates the directory at req.Path along with any missing
// ancestors and returns its id. Existing directories along the path are reused.
func (fs *FileSystem) AddDirNode(req *simfs.DirCreateRequest) (simfs.InodeID, error) {
	logger := util.GetLogger("AddDirNode").With().Str("uuid", req.UUID).Logger()

	cur := fs.root
	if cur == simfs.NoInode {
		return simfs.NoInode, simfs.ErrNoRoot
	}

	newCnt := 0
	for _, name := range splitPath(req.Path) {
		if child, ok := fs.FindByName(cur, name); ok {
			cur = child
			continue
		}
		id, err := fs.CreateDir(cur, name)
		if err != nil {
			logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create directory")
			return simfs.NoInode, err
		}
		newCnt++
		cur = id
	}

	if n, _ := fs.nodes.Load(cur); !n.IsDir() {
		return simfs.NoInode, fmt.Errorf("%w: %s is a file", simfs.ErrInvalidParent, req.Path)
	}
	if newCnt > 0 {
		logger.Info().Str("path", req.Path).Msg(fmt.Sprintf("Created %d new dir(s)", newCnt))
	}
	return cur, nil
}

// AddFileNode creates the file at req.Path, creating missing ancestor
// directories first, and allocates its blocks.
func (fs *FileSystem) AddFileNode(req *simfs.FileCreateRequest) (simfs.InodeID, error) {
	logger := util.GetLogger("AddFileNode").With().Str("uuid", req.UUID).Logger()

	parent := fs.root
	if parent == simfs.NoInode {
		return simfs.NoInode, simfs.ErrNoRoot
	}

	dirPath, name := path.Split(strings.Trim(req.Path, "/"))
	if dirPath != "" {
		// Implicit dir requests share the file request's fields with a different path
		dirReq := simfs.DirCreateRequest{NodeRequest: req.NodeRequest}
		dirReq.Path = dirPath
		dir, err := fs.AddDirNode(&dirReq)
		if err != nil {
			logger.Error().Err(err).Str("path", dirReq.Path).Msg("Failed to create file's ancestor directory(s)")
			return simfs.NoInode, err
		}
		parent = dir
	}

	id, err := fs.CreateFile(parent, name, req.Size)
	if err != nil {
		logger.Error().Err(err).Str("path", req.Path).Msg("Failed to create file")
		return simfs.NoInode, err
	}
	logger.Info().Str("path", req.Path).Int64("size", req.Size).Msg("Created file")
	return id, nil
}
