package domain

import (
	"fmt"
	"path"
	"strings"
)

// ToolMetadata describes a packaged tool. Entry is the package-relative path
// of the implementation file; Module names the exported symbol inside it.
type ToolMetadata struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
	License string `json:"license"`
	Entry   string `json:"entry"`
	Module  string `json:"module"`
}

// ToolPackage is a tool's metadata plus the raw bytes of every file in its
// source tree. Treated as immutable once persisted to the cache.
type ToolPackage struct {
	Metadata ToolMetadata
	Files    map[string][]byte
}

// PayloadFile is a single file in transportable form, content base64-encoded.
type PayloadFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PackagePayload is the wire form of a package, as produced for upload and
// returned by the registry download endpoint.
type PackagePayload struct {
	Author  string        `json:"author"`
	Name    string        `json:"name"`
	Version string        `json:"version"`
	License string        `json:"license"`
	Files   []PayloadFile `json:"files"`
	Entry   string        `json:"entry"`
	Module  string        `json:"module"`
}

// ToolConfig mirrors the declarative config.json shipped inside a tool.
type ToolConfig struct {
	Name    string          `json:"name"`
	License string          `json:"license,omitempty"`
	Meta    ToolConfigMeta  `json:"meta"`
	Build   ToolConfigBuild `json:"build"`
}

type ToolConfigMeta struct {
	Author  string `json:"author"`
	Version string `json:"version"`
}

type ToolConfigBuild struct {
	Entry  string `json:"entry"`
	Module string `json:"module"`
}

// ToolRef identifies a tool in the registry. An empty Version means "latest".
type ToolRef struct {
	Author  string
	Name    string
	Version string
	Local   bool
}

func (r ToolRef) String() string {
	base := r.Author + "/" + r.Name
	if r.Version == "" {
		return base
	}
	return base + "@" + r.Version
}

// ToolListing is one entry of the registry list endpoint.
type ToolListing struct {
	Author      string `json:"author"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	ToolType    string `json:"tool_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// LoadedTool holds a tool's resolved implementation and parsed config. It is
// owned by the caller; there is nothing to release.
type LoadedTool struct {
	Impl   any
	Config ToolConfig
}

// ValidateFilePath rejects package-relative paths that are absolute or escape
// the package root.
func ValidateFilePath(rel string) error {
	rel = strings.ReplaceAll(rel, "\\", "/")
	if rel == "" {
		return fmt.Errorf("empty file path")
	}
	if strings.HasPrefix(rel, "/") {
		return fmt.Errorf("absolute file path %q", rel)
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("file path %q escapes package root", rel)
	}
	return nil
}
