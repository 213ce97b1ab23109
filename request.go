package simfs

// NodeRequest has common fields embedded in concrete request types
type NodeRequest struct {
	Path string // slash separated, relative to root
	Type NodeCreateRequestType
	UUID string // Correlates log lines for one request
}

// NodeCreateRequestType valid types are FileNodeType "file", DirNodeType "dir"
type NodeCreateRequestType string

const (
	FileNodeType NodeCreateRequestType = "file"
	DirNodeType  NodeCreateRequestType = "dir"
)

type FileCreateRequest struct {
	NodeRequest
	Size int64
}

type DirCreateRequest struct {
	NodeRequest
}

// NodeCreateRequest is implemented by *FileCreateRequest and *DirCreateRequest
type NodeCreateRequest interface {
	Node() *NodeRequest
}

func (r *FileCreateRequest) Node() *NodeRequest {
	return &r.NodeRequest
}

func (r *DirCreateRequest) Node() *NodeRequest {
	return &r.NodeRequest
}
