package loader

import (
	"fmt"
	"plugin"

	"toolpak/internal/domain"
)

// PluginModuleLoader resolves symbols through the runtime's shared-library
// plugin support. Entry files are built with -buildmode=plugin.
type PluginModuleLoader struct{}

func NewPluginModuleLoader() *PluginModuleLoader {
	return &PluginModuleLoader{}
}

func (*PluginModuleLoader) LoadSymbol(path, symbol string) (any, error) {
	mod, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open module %s: %w", path, err)
	}
	sym, err := mod.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s", domain.ErrSymbolNotFound, symbol, path)
	}
	return sym, nil
}
