package requests

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/brettbedarf/simfs"
)

// NodeRequestDTO is the JSON representation of [simfs.NodeRequest]
type NodeRequestDTO struct {
	Path string                      `json:"path"`
	Type simfs.NodeCreateRequestType `json:"type"`
	UUID *string                     `json:"uuid,omitempty"` // Optional UUID to correlate logs for this request
}

// FileRequestDTO is the JSON representation of [simfs.FileCreateRequest]
type FileRequestDTO struct {
	NodeRequestDTO
	Size *Size `json:"size,omitempty"` // Defaults to 0
}

type DirRequestDTO struct {
	NodeRequestDTO
}

// Size is a byte count given either as a number (20000) or as a human
// readable string ("20 kB", "14KiB").
type Size int64

func (s *Size) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Size(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("size must be a number or a string: %s", data)
	}
	b, err := humanize.ParseBytes(str)
	if err != nil {
		return fmt.Errorf("size %q: %w", str, err)
	}
	if b > math.MaxInt64 {
		return fmt.Errorf("size %q overflows", str)
	}
	*s = Size(b)
	return nil
}
