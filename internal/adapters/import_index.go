package adapters

import (
	"context"
	"encoding/json"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"bblocks-register/internal/ports"
	"bblocks-register/internal/types"
)

// ImportIndexAdapter fetches remote register documents and flattens
// them, following transitive imports breadth-first. Each URL is fetched
// at most once; the first summary for an identifier wins.
type ImportIndexAdapter struct {
	Loader ports.DocumentLoader
}

var _ ports.RegisterIndexPort = (*ImportIndexAdapter)(nil)

func NewImportIndexAdapter(loader ports.DocumentLoader) *ImportIndexAdapter {
	return &ImportIndexAdapter{Loader: loader}
}

func (a *ImportIndexAdapter) LoadAll(ctx context.Context, urls []string) (map[string]*types.ImportedBlockSummary, error) {
	imported := map[string]*types.ImportedBlockSummary{}
	visited := map[string]struct{}{}
	queue := append([]string{}, urls...)

	for len(queue) > 0 {
		url := queue[0]
		queue = queue[1:]
		if url == "" {
			continue
		}
		if _, seen := visited[url]; seen {
			continue
		}
		visited[url] = struct{}{}

		data, err := a.Loader.Load(ctx, url)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to fetch register document " + url).
				WithCause(err)
		}
		var document types.RegisterDocument
		if err := json.Unmarshal(data, &document); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("malformed register document " + url).
				WithCause(err)
		}

		for _, summary := range document.Blocks {
			if summary.ItemIdentifier == "" {
				continue
			}
			if _, exists := imported[summary.ItemIdentifier]; exists {
				continue
			}
			imported[summary.ItemIdentifier] = summary
		}
		queue = append(queue, document.Imports...)
		log.Ctx(ctx).Debug().
			Str("url", url).
			Int("blocks", len(document.Blocks)).
			Int("imports", len(document.Imports)).
			Msg("register document imported")
	}
	return imported, nil
}
