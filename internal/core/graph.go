package core

import (
	"context"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/ports"
	"bblocks-register/internal/shared"
	"bblocks-register/internal/types"
)

// GraphBuilder merges declared and inferred dependencies of every
// local block into one directed graph over local and imported
// identifiers, rejects cycles, and re-orders the register
// topologically. Edges point from a dependency to its dependents.
type GraphBuilder struct {
	register *Register
	loader   ports.DocumentLoader
}

func NewGraphBuilder(register *Register, loader ports.DocumentLoader) *GraphBuilder {
	return &GraphBuilder{register: register, loader: loader}
}

// Build runs dependency inference for every local block, performs one
// whole-graph cycle check, and rewrites Register.Order into a valid
// topological order. Any error is fatal for the run.
func (b *GraphBuilder) Build(ctx context.Context) error {
	for _, block := range b.register.OrderedBlocks() {
		inferred, err := b.inferDependencies(ctx, block)
		if err != nil {
			return err
		}
		for _, id := range inferred {
			block.AddDependency(id)
		}
		for _, id := range block.Metadata.DependsOn {
			block.AddDependency(id)
		}
		if block.Metadata.Extends != nil {
			block.AddDependency(block.Metadata.Extends.ItemIdentifier)
		}
	}

	nodes, edges := b.assemble()

	if cycles := simpleCycles(nodes, edges); len(cycles) > 0 {
		rendered := make([]string, 0, len(cycles))
		for _, cycle := range cycles {
			rendered = append(rendered, strings.Join(append(cycle, cycle[0]), " -> "))
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("circular dependencies found:\n - " + strings.Join(rendered, "\n - "))
	}

	b.register.Order = b.topologicalOrder(nodes, edges)
	log.Ctx(ctx).Debug().Int("blocks", len(b.register.Order)).Msg("dependency graph built")
	return nil
}

// inferDependencies scans the block's reference-bearing documents and
// classifies every outbound reference against the register.
func (b *GraphBuilder) inferDependencies(ctx context.Context, block *types.Block) ([]string, error) {
	var refs []ScannedReference
	for _, document := range []string{block.SchemaRef, block.OpenAPIRef} {
		if document == "" || !b.loader.Exists(ctx, document) {
			continue
		}
		data, err := b.loader.Load(ctx, document)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to load " + document + " for " + block.Identifier).
				WithCause(err)
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to parse " + document + " for " + block.Identifier).
				WithCause(err)
		}
		refs = append(refs, ScanDocument(doc, document)...)
	}

	found := map[string]struct{}{}
	for _, scanned := range refs {
		id, err := b.classifyReference(ctx, block, scanned)
		if err != nil {
			return nil, err
		}
		if id != "" && id != block.Identifier {
			found[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// classifyReference maps one scanned reference to the block identifier
// it denotes, or "" when it points at a non-block document.
func (b *GraphBuilder) classifyReference(ctx context.Context, block *types.Block, scanned ScannedReference) (string, error) {
	ref := scanned.Ref
	if strings.HasPrefix(ref, BlockURIScheme) {
		id := strings.TrimPrefix(ref, BlockURIScheme)
		if id == block.Identifier {
			return "", nil
		}
		if !b.register.Has(id) {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("invalid reference to building block " + id + " from " + block.Identifier +
					" (" + scanned.SourceDocument + "): the block does not exist - perhaps an import is missing?")
		}
		return id, nil
	}
	if id, ok := b.register.ImportedBlockFiles[ref]; ok {
		return id, nil
	}
	if id, ok := b.register.LocalBlockFiles[b.register.CanonicalLocation(ref)]; ok {
		return id, nil
	}
	if shared.IsURL(ref) {
		// Unknown remote document, not a block dependency.
		return "", nil
	}
	resolved := shared.ResolveReference(scanned.SourceDocument, ref)
	if !shared.IsURL(resolved) && !b.loader.Exists(ctx, resolved) {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("invalid reference to " + resolved + " from " + block.Identifier +
				" (" + scanned.SourceDocument + "): target file does not exist" +
				" - check that the file exists (maybe schema.yaml instead of schema.json?)")
	}
	if id, ok := b.register.LocalBlockFiles[b.register.CanonicalLocation(resolved)]; ok {
		return id, nil
	}
	return "", nil
}

// assemble collects the node set and the dependency -> dependent edge
// set over local and imported identifiers.
func (b *GraphBuilder) assemble() ([]string, map[string][]string) {
	nodeSet := map[string]struct{}{}
	edgeSet := map[string]map[string]struct{}{}
	addEdge := func(from, to string) {
		if from == to {
			return
		}
		if edgeSet[from] == nil {
			edgeSet[from] = map[string]struct{}{}
		}
		edgeSet[from][to] = struct{}{}
		nodeSet[from] = struct{}{}
		nodeSet[to] = struct{}{}
	}
	for id, block := range b.register.Blocks {
		nodeSet[id] = struct{}{}
		for dep := range block.DependsOn {
			addEdge(dep, id)
		}
	}
	for id, summary := range b.register.Imported {
		nodeSet[id] = struct{}{}
		for _, dep := range summary.DependsOn {
			addEdge(dep, id)
		}
	}
	nodes := make([]string, 0, len(nodeSet))
	for id := range nodeSet {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	edges := make(map[string][]string, len(edgeSet))
	for from, tos := range edgeSet {
		for to := range tos {
			edges[from] = append(edges[from], to)
		}
		sort.Strings(edges[from])
	}
	return nodes, edges
}

// simpleCycles enumerates every simple cycle, each reported once
// starting from its lexically smallest node, in edge direction.
func simpleCycles(nodes []string, edges map[string][]string) [][]string {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}
	var cycles [][]string
	for _, start := range nodes {
		path := []string{start}
		onPath := map[string]bool{start: true}
		var visit func(node string)
		visit = func(node string) {
			for _, next := range edges[node] {
				if next == start {
					cycle := make([]string, len(path))
					copy(cycle, path)
					cycles = append(cycles, cycle)
					continue
				}
				if index[next] < index[start] || onPath[next] {
					continue
				}
				path = append(path, next)
				onPath[next] = true
				visit(next)
				path = path[:len(path)-1]
				delete(onPath, next)
			}
		}
		visit(start)
	}
	return cycles
}

// topologicalOrder runs a deterministic Kahn sort: among ready nodes,
// local blocks keep their catalog scan order and imported identifiers
// come after them in lexical order. Only local identifiers are kept in
// the result.
func (b *GraphBuilder) topologicalOrder(nodes []string, edges map[string][]string) []string {
	priority := make(map[string]int, len(nodes))
	for i, id := range b.register.Order {
		priority[id] = i
	}
	rank := func(id string) int {
		if p, ok := priority[id]; ok {
			return p
		}
		return len(b.register.Order)
	}

	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, tos := range edges {
		for _, to := range tos {
			indegree[to]++
		}
	}
	ready := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	less := func(i, j int) bool {
		ri, rj := rank(ready[i]), rank(ready[j])
		if ri != rj {
			return ri < rj
		}
		return ready[i] < ready[j]
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, less)
		node := ready[0]
		ready = ready[1:]
		if _, isLocal := b.register.Blocks[node]; isLocal {
			order = append(order, node)
		}
		for _, next := range edges[node] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return order
}
