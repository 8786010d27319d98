package adapters

import (
	"context"
	"strings"

	"github.com/viant/afs"

	"bblocks-register/internal/ports"
)

// AFSDocumentLoader loads documents through the abstract file system,
// so local paths, http(s) URLs and mem:// test fixtures all go through
// the same port.
type AFSDocumentLoader struct {
	fs afs.Service
}

func NewAFSDocumentLoader() *AFSDocumentLoader {
	return &AFSDocumentLoader{fs: afs.New()}
}

func (l *AFSDocumentLoader) Load(ctx context.Context, location string) ([]byte, error) {
	return l.fs.DownloadWithURL(ctx, location)
}

func (l *AFSDocumentLoader) Exists(ctx context.Context, location string) bool {
	ok, err := l.fs.Exists(ctx, location)
	return err == nil && ok
}

// InterceptLoader rewrites location prefixes before delegating, so
// remote register documents can be served from local mirrors.
type InterceptLoader struct {
	Next     ports.DocumentLoader
	Prefixes map[string]string
}

func (l *InterceptLoader) rewrite(location string) string {
	for prefix, replacement := range l.Prefixes {
		if strings.HasPrefix(location, prefix) {
			return replacement + strings.TrimPrefix(location, prefix)
		}
	}
	return location
}

func (l *InterceptLoader) Load(ctx context.Context, location string) ([]byte, error) {
	return l.Next.Load(ctx, l.rewrite(location))
}

func (l *InterceptLoader) Exists(ctx context.Context, location string) bool {
	return l.Next.Exists(ctx, l.rewrite(location))
}
