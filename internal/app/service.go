package app

import (
	"bblocks-register/internal/adapters"
	"bblocks-register/internal/ports"
	"bblocks-register/internal/types"
)

// Service wires the catalog, import index, loader and writer behind
// their ports and drives register builds.
type Service struct {
	Catalog ports.CatalogPort
	Imports ports.RegisterIndexPort
	Loader  ports.DocumentLoader
	Output  ports.OutputWriterPort
	Options types.BuildOptions
}

// NewService builds the default production wiring.
func NewService(opts types.BuildOptions) (*Service, error) {
	catalog, err := adapters.NewCatalogAdapter(opts)
	if err != nil {
		return nil, err
	}
	loader := adapters.NewAFSDocumentLoader()
	return &Service{
		Catalog: catalog,
		Imports: adapters.NewImportIndexAdapter(loader),
		Loader:  loader,
		Output:  adapters.NewFileOutputWriter(),
		Options: opts,
	}, nil
}
