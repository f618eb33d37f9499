package pack

import (
	"encoding/base64"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"toolpak/internal/domain"
)

// Builder turns a tool source folder into a transportable package payload.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("builder")}
}

// Build reads the folder's config.json (absence yields empty metadata, not an
// error) and encodes every file under the folder into the payload. Required
// metadata fields are not validated here: partial draft packages are
// buildable on purpose.
func (b *Builder) Build(folder string) (domain.PackagePayload, error) {
	const op = "builder.build"
	files, err := b.collectFiles(folder)
	if err != nil {
		return domain.PackagePayload{}, domain.E(domain.CodeInternal, op, "", err)
	}
	cfg, err := readConfig(folder)
	if err != nil {
		return domain.PackagePayload{}, err
	}

	payload := domain.PackagePayload{
		Author:  cfg.Meta.Author,
		Name:    cfg.Name,
		Version: cfg.Meta.Version,
		License: cfg.License,
		Files:   files,
		Entry:   cfg.Build.Entry,
		Module:  cfg.Build.Module,
	}
	if payload.License == "" {
		payload.License = domain.DefaultLicense
	}
	if payload.Entry == "" {
		payload.Entry = domain.DefaultEntry
	}
	if payload.Module == "" {
		payload.Module = domain.DefaultModule
	}
	b.logger.Debug("built package payload",
		zap.String("name", payload.Name),
		zap.String("version", payload.Version),
		zap.Int("files", len(payload.Files)),
	)
	return payload, nil
}

func (b *Builder) collectFiles(folder string) ([]domain.PayloadFile, error) {
	var files []domain.PayloadFile
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, domain.PayloadFile{
			Path:    filepath.ToSlash(rel),
			Content: base64.StdEncoding.EncodeToString(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func readConfig(folder string) (domain.ToolConfig, error) {
	data, err := os.ReadFile(filepath.Join(folder, domain.ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ToolConfig{}, nil
		}
		return domain.ToolConfig{}, domain.E(domain.CodeInternal, "builder.config", "", err)
	}
	var cfg domain.ToolConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.ToolConfig{}, domain.E(domain.CodeInvalidConfig, "builder.config", "config.json does not parse", err)
	}
	return cfg, nil
}
