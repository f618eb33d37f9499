package loader

// scopeGuard records one load's mutation of the shared search scope so it can
// be reversed unconditionally on every exit path. The historical behavior of
// popping based on a positional comparison could under- or over-restore the
// scope; the guard restores exactly what it pushed, always.
type scopeGuard struct {
	loader *Loader
	pushed int
	module string
}

// push prepends dir to the search scope unless it is already present.
func (g *scopeGuard) push(dir string) {
	if dir == "" {
		return
	}
	for _, existing := range g.loader.searchPaths {
		if existing == dir {
			return
		}
	}
	g.loader.searchPaths = append([]string{dir}, g.loader.searchPaths...)
	g.pushed++
}

// register binds a module name in the shared module registry for the duration
// of the load.
func (g *scopeGuard) register(module, entryPath string) {
	g.loader.modules[module] = entryPath
	g.module = module
}

// exit reverses every mutation made through this guard. Safe to call exactly
// once, from a defer.
func (g *scopeGuard) exit() {
	if g.pushed > 0 {
		g.loader.searchPaths = g.loader.searchPaths[g.pushed:]
		g.pushed = 0
	}
	if g.module != "" {
		delete(g.loader.modules, g.module)
		g.module = ""
	}
}
