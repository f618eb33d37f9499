package pack

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"toolpak/internal/domain"
)

// packageEnvelope is the persisted form of a cache entry: metadata plus every
// file's content base64-encoded inside a single JSON document.
type packageEnvelope struct {
	Metadata domain.ToolMetadata `json:"metadata"`
	Files    map[string]string   `json:"files"`
}

// SavePackage writes pkg as one cache entry at path, creating parent
// directories as needed. An existing entry is overwritten; the write is not
// atomic, so a failure partway can leave a corrupt entry behind.
func SavePackage(pkg domain.ToolPackage, path string) error {
	const op = "pack.save"
	envelope := packageEnvelope{
		Metadata: pkg.Metadata,
		Files:    make(map[string]string, len(pkg.Files)),
	}
	for rel, content := range pkg.Files {
		if err := domain.ValidateFilePath(rel); err != nil {
			return domain.E(domain.CodeInvalidArgument, op, "", err)
		}
		envelope.Files[rel] = base64.StdEncoding.EncodeToString(content)
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	return nil
}

// LoadPackage reads a cache entry back into a package. A missing entry is
// NOT_FOUND; an entry that does not parse into metadata plus files is
// CORRUPT_PACKAGE.
func LoadPackage(path string) (domain.ToolPackage, error) {
	const op = "pack.load"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ToolPackage{}, domain.E(domain.CodeNotFound, op, "", domain.ErrPackageNotFound)
		}
		return domain.ToolPackage{}, domain.E(domain.CodeInternal, op, "", err)
	}
	var envelope packageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op, "cache entry does not parse", err)
	}
	pkg := domain.ToolPackage{
		Metadata: envelope.Metadata,
		Files:    make(map[string][]byte, len(envelope.Files)),
	}
	for rel, encoded := range envelope.Files {
		if err := domain.ValidateFilePath(rel); err != nil {
			return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op, "", err)
		}
		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op, "file content is not base64", err)
		}
		pkg.Files[rel] = content
	}
	return pkg, nil
}
