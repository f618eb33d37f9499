package domain

// ModuleLoader resolves a named exported symbol from a file-backed module.
// The default implementation wraps the runtime's dynamic-library loader;
// tests substitute a registered-factory fake.
type ModuleLoader interface {
	LoadSymbol(path, symbol string) (any, error)
}
