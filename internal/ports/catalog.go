package ports

import (
	"context"

	"bblocks-register/internal/types"
)

// CatalogPort scans the local item tree into Block records, in scan
// order.
type CatalogPort interface {
	Scan(ctx context.Context) ([]*types.Block, error)
}

// RegisterIndexPort loads remote register documents, following their
// import chains, into a flat identifier -> summary map.
type RegisterIndexPort interface {
	LoadAll(ctx context.Context, urls []string) (map[string]*types.ImportedBlockSummary, error)
}
