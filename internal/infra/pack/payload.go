package pack

import (
	"encoding/base64"
	"fmt"

	"toolpak/internal/domain"
)

// PackageFromPayload decodes a transportable payload into an in-memory
// package, reversing the base64 content transport exactly.
func PackageFromPayload(payload domain.PackagePayload) (domain.ToolPackage, error) {
	const op = "pack.decode"
	pkg := domain.ToolPackage{
		Metadata: domain.ToolMetadata{
			Author:  payload.Author,
			Name:    payload.Name,
			Version: payload.Version,
			License: payload.License,
			Entry:   payload.Entry,
			Module:  payload.Module,
		},
		Files: make(map[string][]byte, len(payload.Files)),
	}
	for _, file := range payload.Files {
		if err := domain.ValidateFilePath(file.Path); err != nil {
			return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op, "", err)
		}
		if _, exists := pkg.Files[file.Path]; exists {
			return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op,
				fmt.Sprintf("duplicate file path %q", file.Path), nil)
		}
		content, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return domain.ToolPackage{}, domain.E(domain.CodeCorruptPackage, op,
				fmt.Sprintf("file %q content is not base64", file.Path), err)
		}
		pkg.Files[file.Path] = content
	}
	return pkg, nil
}
