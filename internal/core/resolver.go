package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/ports"
	"bblocks-register/internal/shared"
)

// BlockURIScheme prefixes references to other blocks by identifier,
// independent of their eventual file location.
const BlockURIScheme = "bblocks://"

// ReferencedSchema is a loaded schema document positioned at a
// fragment: Contents holds the whole document, Subschema the fragment
// target (the whole document when Fragment is empty).
type ReferencedSchema struct {
	Location  string
	Fragment  string
	Contents  map[string]any
	Subschema map[string]any
}

// FullRef renders the location with its fragment re-attached.
func (s *ReferencedSchema) FullRef() string {
	if s.Fragment != "" {
		return s.Location + "#" + s.Fragment
	}
	return s.Location
}

// SchemaReferenceResolver maps a reference and the document it was
// found in to a loaded document plus a canonical location. Local and
// imported block schemas are substituted by their annotated versions
// when available. Documents are loaded at most once per resolver; the
// cache lives and dies with the run.
type SchemaReferenceResolver struct {
	register *Register
	loader   ports.DocumentLoader
	cache    map[string]map[string]any
}

func NewSchemaReferenceResolver(register *Register, loader ports.DocumentLoader) *SchemaReferenceResolver {
	return &SchemaReferenceResolver{
		register: register,
		loader:   loader,
		cache:    map[string]map[string]any{},
	}
}

// Resolve loads the document a reference denotes. from is the document
// the reference appeared in; it may be nil for top-level entry points.
func (r *SchemaReferenceResolver) Resolve(ctx context.Context, ref string, from *ReferencedSchema) (*ReferencedSchema, error) {
	if strings.HasPrefix(ref, "#") {
		if from == nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("fragment-only reference without an originating document: " + ref)
		}
		return r.position(from.Location, ref[1:], from.Contents, ref, from)
	}

	location, fragment := shared.SplitFragment(ref)

	if strings.HasPrefix(location, BlockURIScheme) {
		resolved, err := r.blockSchemaLocation(ctx, strings.TrimPrefix(location, BlockURIScheme))
		if err != nil {
			return nil, err
		}
		location = resolved
	} else {
		if from != nil {
			location = shared.ResolveReference(from.Location, location)
		}
		location = r.findSchema(ctx, r.register.CanonicalLocation(location))
	}

	contents, err := r.load(ctx, location, ref, from)
	if err != nil {
		return nil, err
	}
	return r.position(location, fragment, contents, ref, from)
}

// blockSchemaLocation maps a bblocks:// identifier to a concrete
// schema location, preferring the annotated schema once it exists.
func (r *SchemaReferenceResolver) blockSchemaLocation(ctx context.Context, id string) (string, error) {
	block, imported := r.register.Lookup(id)
	switch {
	case block != nil:
		if !block.HasSchema() {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("building block " + id + " has no schema document")
		}
		if r.loader.Exists(ctx, block.AnnotatedSchema) {
			return block.AnnotatedSchema, nil
		}
		return block.SchemaRef, nil
	case imported != nil:
		if schema := imported.PreferredSchema(); schema != "" {
			return schema, nil
		}
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("imported building block " + id + " has no schema document")
	default:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("building block " + id + " not found in register or imports")
	}
}

// findSchema substitutes the annotated form of a known block schema.
// The raw source is kept while the annotated file does not exist yet,
// so a block being annotated can still be referenced during its own
// bootstrap.
func (r *SchemaReferenceResolver) findSchema(ctx context.Context, location string) string {
	if id, ok := r.register.LocalBlockFiles[location]; ok {
		block := r.register.Blocks[id]
		if r.loader.Exists(ctx, block.AnnotatedSchema) {
			return block.AnnotatedSchema
		}
		return location
	}
	if id, ok := r.register.ImportedBlockFiles[location]; ok {
		if schema := r.register.Imported[id].PreferredSchema(); schema != "" {
			return schema
		}
	}
	return location
}

func (r *SchemaReferenceResolver) load(ctx context.Context, location, ref string, from *ReferencedSchema) (map[string]any, error) {
	if cached, ok := r.cache[location]; ok {
		return cached, nil
	}
	data, err := r.loader.Load(ctx, location)
	if err != nil {
		builder := errbuilder.New().WithCause(err)
		if shared.IsURL(location) {
			builder = builder.WithCode(errbuilder.CodeInternal).
				WithMsg("failed to fetch remote document " + location)
		} else {
			origin := "unknown document"
			if from != nil {
				origin = from.Location
			}
			builder = builder.WithCode(errbuilder.CodeNotFound).
				WithMsg("unresolved reference " + ref + " from " + origin)
		}
		return nil, builder
	}
	var contents map[string]any
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse document " + location).
			WithCause(err)
	}
	r.cache[location] = contents
	log.Ctx(ctx).Debug().Str("location", location).Msg("document loaded")
	return contents, nil
}

func (r *SchemaReferenceResolver) position(location, fragment string, contents map[string]any, ref string, from *ReferencedSchema) (*ReferencedSchema, error) {
	subschema := contents
	if fragment != "" {
		target, err := navigatePointer(contents, fragment)
		if err != nil {
			origin := location
			if from != nil {
				origin = from.Location
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("unresolved reference " + ref + " from " + origin).
				WithCause(err)
		}
		subschema = target
	}
	return &ReferencedSchema{
		Location:  location,
		Fragment:  fragment,
		Contents:  contents,
		Subschema: subschema,
	}, nil
}

// navigatePointer walks a JSON-pointer-style fragment ("/$defs/Point")
// through a decoded document.
func navigatePointer(doc map[string]any, pointer string) (map[string]any, error) {
	var current any = doc
	for _, token := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		if token == "" {
			continue
		}
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg("fragment member not found: " + token)
			}
			current = next
		case []any:
			index, err := strconv.Atoi(token)
			if err != nil || index < 0 || index >= len(node) {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg("fragment index out of range: " + token)
			}
			current = node[index]
		default:
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("fragment path does not denote a subschema: " + token)
		}
	}
	target, ok := current.(map[string]any)
	if !ok {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("fragment target is not a schema object")
	}
	return target, nil
}
