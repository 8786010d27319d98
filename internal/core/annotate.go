package core

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/ports"
	"bblocks-register/internal/shared"
	"bblocks-register/internal/types"
)

// SchemaDialect is the dialect declared on every produced schema.
const SchemaDialect = "https://json-schema.org/draft/2020-12/schema"

// SchemaAnnotator prepares a block's raw schema for publication:
// an extends declaration is wrapped into an allOf over the parent, and
// every reference is rewritten to the location the target will be
// published at. Semantic enrichment happens outside the core; its
// output is consumed as just another schema document.
type SchemaAnnotator struct {
	register *Register
	loader   ports.DocumentLoader
}

func NewSchemaAnnotator(register *Register, loader ports.DocumentLoader) *SchemaAnnotator {
	return &SchemaAnnotator{register: register, loader: loader}
}

// Annotate loads the block's raw schema and returns the document to be
// written as its annotated schema.
func (a *SchemaAnnotator) Annotate(ctx context.Context, block *types.Block) (map[string]any, error) {
	data, err := a.loader.Load(ctx, block.SchemaRef)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to load schema for " + block.Identifier + " from " + block.SchemaRef).
			WithCause(err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse schema for " + block.Identifier).
			WithCause(err)
	}

	if block.Metadata.Extends != nil {
		doc = wrapExtends(doc, block.Metadata.Extends)
	}

	var rewriteErr error
	RewriteRefs(doc, func(ref string, _ map[string]any) string {
		rewritten, err := a.RewriteReference(ctx, ref, block, block.SchemaRef)
		if err != nil && rewriteErr == nil {
			rewriteErr = err
		}
		if err != nil {
			return ref
		}
		return rewritten
	})
	if rewriteErr != nil {
		return nil, rewriteErr
	}
	return doc, nil
}

// RewriteReference maps one reference found in a block's document to
// the location it should carry in published output: block references
// point at annotated schemas (as base-URL-absolute URLs when a base URL
// is configured, relative paths otherwise), unknown references are kept.
func (a *SchemaAnnotator) RewriteReference(ctx context.Context, ref string, fromBlock *types.Block, fromDocument string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ref, nil
	}
	location, fragment := shared.SplitFragment(ref)
	if fragment != "" {
		fragment = "#" + fragment
	}

	targetID := ""
	switch {
	case strings.HasPrefix(location, BlockURIScheme):
		targetID = strings.TrimPrefix(location, BlockURIScheme)
	case !shared.IsURL(location):
		resolved := shared.ResolveReference(fromDocument, location)
		for _, candidate := range locationVariants(a.register.CanonicalLocation(resolved)) {
			if id, ok := a.register.LocalBlockFiles[candidate]; ok {
				targetID = id
				break
			}
		}
		if targetID == "" {
			// Not a block schema: keep the target reachable from the
			// annotated output location.
			if shared.IsURL(resolved) {
				return resolved + fragment, nil
			}
			if a.register.BaseURL != "" {
				return a.register.URLFor(resolved) + fragment, nil
			}
			return shared.RelativePath(resolved, fromBlock.AnnotatedPath) + fragment, nil
		}
	default:
		if id, ok := a.register.LocalBlockFiles[location]; ok {
			targetID = id
		} else if id, ok := a.register.ImportedBlockFiles[location]; ok {
			targetID = id
		} else {
			return ref, nil
		}
	}

	block, imported := a.register.Lookup(targetID)
	switch {
	case block != nil:
		var targetDoc string
		switch {
		case block.HasSchema():
			targetDoc = block.AnnotatedSchema
		case block.OpenAPIRef != "":
			targetDoc = block.OutputOpenAPI
		default:
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("reference to " + targetID + " from " + fromBlock.Identifier +
					" (" + fromDocument + "): target has no schema or OpenAPI document")
		}
		if a.register.BaseURL != "" {
			return a.register.URLFor(targetDoc) + fragment, nil
		}
		return shared.RelativePath(targetDoc, fromBlock.AnnotatedPath) + fragment, nil
	case imported != nil:
		if schema := imported.PreferredSchema(); schema != "" {
			return schema + fragment, nil
		}
		if len(imported.OpenAPIDocument) > 0 {
			return imported.OpenAPIDocument[0], nil
		}
	}
	return "", errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("cannot replace dependency " + targetID + " referenced from " + fromBlock.Identifier +
			" (" + fromDocument + "): is an import missing?")
}

// locationVariants returns the location plus its .yaml/.json siblings,
// since block schemas are published under both extensions.
func locationVariants(location string) []string {
	variants := []string{location}
	switch {
	case strings.HasSuffix(location, ".json"):
		variants = append(variants, strings.TrimSuffix(location, ".json")+".yaml")
	case strings.HasSuffix(location, ".yaml"):
		variants = append(variants, strings.TrimSuffix(location, ".yaml")+".json")
	case strings.HasSuffix(location, ".yml"):
		variants = append(variants, strings.TrimSuffix(location, ".yml")+".json")
	}
	return variants
}

// wrapExtends turns a schema into an allOf over the declared parent,
// inserting the block's own schema at the declared path (the whole
// schema when no path is given). JSON-LD passthrough keys stay at the
// top level.
func wrapExtends(doc map[string]any, extends *types.ExtendsDecl) map[string]any {
	inserted := insertAtPath(doc, extends.Path)
	wrapped := map[string]any{
		"$schema": SchemaDialect,
		"allOf": []any{
			map[string]any{"$ref": BlockURIScheme + extends.ItemIdentifier},
			inserted,
		},
	}
	for key, value := range doc {
		if strings.HasPrefix(key, "x-jsonld-") {
			wrapped[key] = value
		}
	}
	return wrapped
}

// insertAtPath nests the schema under a dot-separated property path.
// A trailing "[]" on a segment inserts through an array's items.
func insertAtPath(doc map[string]any, path string) map[string]any {
	path = strings.TrimSpace(path)
	path = strings.TrimLeft(path, ".$")
	if path == "" {
		return doc
	}
	inserted := map[string]any{}
	inner := inserted
	for _, segment := range splitInsertionPath(path) {
		segment = strings.ReplaceAll(segment, `"`, "")
		properties := map[string]any{}
		inner["properties"] = properties
		if strings.HasSuffix(segment, "[]") {
			items := map[string]any{}
			properties[strings.TrimSuffix(segment, "[]")] = map[string]any{
				"type":  "array",
				"items": items,
			}
			inner = items
		} else {
			next := map[string]any{}
			properties[segment] = next
			inner = next
		}
	}
	for key, value := range doc {
		if key != "$schema" && !strings.HasPrefix(key, "x-jsonld-") {
			inner[key] = value
		}
	}
	return inserted
}

// splitInsertionPath splits on dots that are outside double quotes, so
// quoted segments may contain literal dots.
func splitInsertionPath(path string) []string {
	var segments []string
	var current strings.Builder
	inQuotes := false
	for _, r := range path {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == '.' && !inQuotes:
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	segments = append(segments, current.String())
	return segments
}
