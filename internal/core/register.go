package core

import (
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"bblocks-register/internal/shared"
	"bblocks-register/internal/types"
)

// Register owns the local blocks, the imported summaries and the lookup
// tables mapping known schema locations back to block identifiers.
// Exactly one instance exists per run.
type Register struct {
	Blocks   map[string]*types.Block
	Imported map[string]*types.ImportedBlockSummary

	// Order lists local block identifiers; scan order until the graph
	// builder re-orders it topologically.
	Order []string

	// LocalBlockFiles maps canonical locations of every local document
	// that may be referenced (raw schema, annotated variants, OpenAPI)
	// to the owning block identifier. ImportedBlockFiles is the remote
	// counterpart keyed by advertised URLs.
	LocalBlockFiles    map[string]string
	ImportedBlockFiles map[string]string

	BaseURL string

	// RootPath is the parent of the items directory; AnnotatedRoot the
	// annotated output directory. Both anchor URL rendering.
	RootPath      string
	AnnotatedRoot string

	deps map[string][]string
}

// NewRegister indexes the catalog scan result and the import index.
// A duplicate identifier between two local blocks is a construction
// error regardless of any error-handling switches.
func NewRegister(blocks []*types.Block, imported map[string]*types.ImportedBlockSummary, opts types.BuildOptions) (*Register, error) {
	r := &Register{
		Blocks:             make(map[string]*types.Block, len(blocks)),
		Imported:           imported,
		LocalBlockFiles:    map[string]string{},
		ImportedBlockFiles: map[string]string{},
		BaseURL:            opts.BaseURL,
		deps:               map[string][]string{},
	}
	if r.Imported == nil {
		r.Imported = map[string]*types.ImportedBlockSummary{}
	}
	if opts.ItemsPath != "" {
		abs, err := filepath.Abs(opts.ItemsPath)
		if err == nil {
			r.RootPath = filepath.Dir(abs)
		}
	}
	if opts.AnnotatedPath != "" {
		abs, err := filepath.Abs(opts.AnnotatedPath)
		if err == nil {
			r.AnnotatedRoot = abs
		}
	}

	for _, block := range blocks {
		if _, exists := r.Blocks[block.Identifier]; exists {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg("duplicate building block identifier: " + block.Identifier)
		}
		r.Blocks[block.Identifier] = block
		r.Order = append(r.Order, block.Identifier)
		for _, location := range referenceBearingFiles(block) {
			r.registerLocalFile(location, block.Identifier)
		}
	}

	for id, summary := range r.Imported {
		for _, location := range summary.SchemaLocations() {
			if location != "" {
				r.ImportedBlockFiles[location] = id
			}
		}
	}
	return r, nil
}

// referenceBearingFiles lists the documents of a block that can contain
// references or be referenced from other files, including output
// variants that may not exist yet.
func referenceBearingFiles(block *types.Block) []string {
	var out []string
	if block.HasSchema() {
		out = append(out,
			block.SchemaRef,
			block.AnnotatedSchema,
			withExt(block.AnnotatedSchema, ".json"),
			withStem(block.AnnotatedSchema, "schema-oas3.0", ".yaml"),
			withStem(block.AnnotatedSchema, "schema-oas3.0", ".json"),
		)
	}
	if block.OpenAPIRef != "" {
		out = append(out, block.OpenAPIRef, block.OutputOpenAPI)
	}
	return out
}

func (r *Register) registerLocalFile(location, id string) {
	if location == "" {
		return
	}
	canonical := r.CanonicalLocation(location)
	r.LocalBlockFiles[canonical] = id
	if r.BaseURL != "" && !shared.IsURL(canonical) {
		r.LocalBlockFiles[r.URLFor(canonical)] = id
	}
}

// CanonicalLocation normalizes a location for map lookups: URLs are
// kept verbatim, paths are cleaned.
func (r *Register) CanonicalLocation(location string) string {
	if shared.IsURL(location) {
		return location
	}
	return filepath.Clean(location)
}

// URLFor renders a local path as an absolute URL under the configured
// base URL. Annotated outputs are addressed relative to the annotated
// root, source files relative to the items parent. Without a base URL
// the path is returned unchanged.
func (r *Register) URLFor(path string) string {
	if r.BaseURL == "" || shared.IsURL(path) {
		return path
	}
	rel := ""
	if r.AnnotatedRoot != "" {
		rel = shared.RelativePath(path, r.AnnotatedRoot)
	}
	if rel == "" || strings.HasPrefix(rel, "..") {
		rel = shared.RelativePath(path, r.RootPath)
	}
	return shared.JoinURL(r.BaseURL, rel)
}

// Lookup finds an identifier in the local catalog first, then in the
// imports.
func (r *Register) Lookup(id string) (*types.Block, *types.ImportedBlockSummary) {
	if block, ok := r.Blocks[id]; ok {
		return block, nil
	}
	return nil, r.Imported[id]
}

// Has reports whether the identifier exists locally or in an import.
func (r *Register) Has(id string) bool {
	block, imported := r.Lookup(id)
	return block != nil || imported != nil
}

// OrderedBlocks returns the local blocks in the current Order.
func (r *Register) OrderedBlocks() []*types.Block {
	out := make([]*types.Block, 0, len(r.Order))
	for _, id := range r.Order {
		out = append(out, r.Blocks[id])
	}
	return out
}

// FindDependencies returns the identifier followed by its transitive
// dependency closure, in discovery order. Results are memoized for the
// lifetime of the register.
func (r *Register) FindDependencies(id string) []string {
	if cached, ok := r.deps[id]; ok {
		return cached
	}
	var dependsOn []string
	if block, imported := r.Lookup(id); block != nil {
		dependsOn = block.SortedDependsOn()
	} else if imported != nil {
		dependsOn = imported.DependsOn
	} else {
		return nil
	}
	closure := []string{id}
	for _, dep := range dependsOn {
		closure = append(closure, r.FindDependencies(dep)...)
	}
	r.deps[id] = closure
	return closure
}

// InheritedShaclRules aggregates SHACL rules over the block's
// transitive dependency closure, keyed by the identifier contributing
// each rule set.
func (r *Register) InheritedShaclRules(id string) map[string][]string {
	rules := map[string][]string{}
	for _, dep := range r.FindDependencies(id) {
		block, imported := r.Lookup(dep)
		switch {
		case block != nil && len(block.ShaclRules) > 0:
			rules[block.Identifier] = append(rules[block.Identifier], block.ShaclRules...)
		case imported != nil:
			for owner, set := range imported.ShaclRules {
				if owner == "" {
					owner = imported.ItemIdentifier
				}
				rules[owner] = append(rules[owner], set...)
			}
		}
	}
	return rules
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func withStem(path, stem, ext string) string {
	return filepath.Join(filepath.Dir(path), stem+ext)
}
