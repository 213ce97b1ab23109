package requests

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/simfs"
)

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (simfs.NodeCreateRequestType, error) {
	var meta struct {
		Type simfs.NodeCreateRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", err
	}
	return meta.Type, nil
}

// UnmarshalFileRequest unmarshals a single file definition
func UnmarshalFileRequest(data []byte) (*simfs.FileCreateRequest, error) {
	var dto FileRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	return &simfs.FileCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
		Size:        int64(valueOrDefault(dto.Size, 0)),
	}, nil
}

// UnmarshalDirRequest unmarshals a single directory definition
func UnmarshalDirRequest(data []byte) (*simfs.DirCreateRequest, error) {
	var dto DirRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, err
	}

	return &simfs.DirCreateRequest{
		NodeRequest: convertNodeDTO(dto.NodeRequestDTO),
	}, nil
}

// UnmarshalNodes decodes a list of node definitions in the given format
// ("json", "yaml" or "yml") and returns the requests in definition order.
func UnmarshalNodes(data []byte, format string) ([]simfs.NodeCreateRequest, error) {
	rawNodes, err := splitNodes(data, format)
	if err != nil {
		return nil, err
	}

	reqs := make([]simfs.NodeCreateRequest, 0, len(rawNodes))
	for i, rawNode := range rawNodes {
		nodeType, err := GetNodeType(rawNode)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}

		var req simfs.NodeCreateRequest
		switch nodeType {
		case simfs.FileNodeType:
			req, err = UnmarshalFileRequest(rawNode)
		case simfs.DirNodeType:
			req, err = UnmarshalDirRequest(rawNode)
		default:
			return nil, fmt.Errorf("node %d: unknown node type %q", i, nodeType)
		}
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// ReadNodesFile reads a node definition file, picking the format from its extension
func ReadNodesFile(path string) ([]simfs.NodeCreateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalNodes(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// splitNodes returns every list entry as a JSON object so YAML and JSON
// definitions share the same unmarshaling path
func splitNodes(data []byte, format string) ([]json.RawMessage, error) {
	switch strings.ToLower(format) {
	case "json":
		var rawNodes []json.RawMessage
		if err := json.Unmarshal(data, &rawNodes); err != nil {
			return nil, fmt.Errorf("failed to parse JSON node definitions: %w", err)
		}
		return rawNodes, nil
	case "yaml", "yml":
		var nodes []map[string]any
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("failed to parse YAML node definitions: %w", err)
		}
		rawNodes := make([]json.RawMessage, 0, len(nodes))
		for _, n := range nodes {
			raw, err := json.Marshal(n)
			if err != nil {
				return nil, err
			}
			rawNodes = append(rawNodes, raw)
		}
		return rawNodes, nil
	default:
		return nil, fmt.Errorf("unsupported node definition format: %q (supported: json, yaml, yml)", format)
	}
}

func convertNodeDTO(dto NodeRequestDTO) simfs.NodeRequest {
	return simfs.NodeRequest{
		Path: dto.Path,
		Type: dto.Type,
		UUID: valueOrDefault(dto.UUID, uuid.New().String()),
	}
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
