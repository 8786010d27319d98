package app

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/core"
	"bblocks-register/internal/shared"
	"bblocks-register/internal/types"
)

// BuildResult summarizes one register build.
type BuildResult struct {
	Processed int
	Skipped   int
	Written   []string
}

// Build scans the catalog, resolves imports, builds the dependency
// graph and produces every output document in topological order.
// With fail-on-error off, a broken block is logged and skipped; graph
// errors are always fatal.
func (s *Service) Build(ctx context.Context) (*BuildResult, error) {
	register, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}

	loader := s.Loader
	resolver := core.NewSchemaReferenceResolver(register, loader)
	annotator := core.NewSchemaAnnotator(register, loader)
	composer := core.NewExtensionComposer(register, resolver)

	result := &BuildResult{}
	for _, block := range register.OrderedBlocks() {
		if err := s.processBlock(ctx, register, annotator, composer, block, result); err != nil {
			if s.Options.FailOnError {
				return nil, err
			}
			log.Ctx(ctx).Error().Err(err).Str("block", block.Identifier).Msg("skipping building block")
			result.Skipped++
		} else {
			result.Processed++
		}
	}

	if err := s.writeRegisterDocument(ctx, register, result); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("written", len(result.Written)).
		Msg("register built")
	return result, nil
}

// Validate runs the catalog scan, import resolution and graph
// construction without producing any output.
func (s *Service) Validate(ctx context.Context) (*core.Register, error) {
	return s.prepare(ctx)
}

// GraphInfo lists each block in topological order with its sorted
// dependencies.
func (s *Service) GraphInfo(ctx context.Context) ([]string, error) {
	register, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, block := range register.OrderedBlocks() {
		deps := block.SortedDependsOn()
		if len(deps) == 0 {
			lines = append(lines, block.Identifier)
			continue
		}
		lines = append(lines, block.Identifier+" <- "+strings.Join(deps, ", "))
	}
	return lines, nil
}

func (s *Service) prepare(ctx context.Context) (*core.Register, error) {
	blocks, err := s.Catalog.Scan(ctx)
	if err != nil {
		return nil, err
	}
	imported, err := s.Imports.LoadAll(ctx, s.Options.ImportURLs)
	if err != nil {
		return nil, err
	}
	register, err := core.NewRegister(blocks, imported, s.Options)
	if err != nil {
		return nil, err
	}
	if err := core.NewGraphBuilder(register, s.Loader).Build(ctx); err != nil {
		return nil, err
	}
	return register, nil
}

func (s *Service) processBlock(ctx context.Context, register *core.Register, annotator *core.SchemaAnnotator, composer *core.ExtensionComposer, block *types.Block, result *BuildResult) error {
	if block.OpenAPIRef != "" {
		if err := s.writeOpenAPI(ctx, annotator, block, result); err != nil {
			return err
		}
	}
	if !block.HasSchema() {
		return nil
	}

	doc, err := annotator.Annotate(ctx, block)
	if err != nil {
		return err
	}
	if err := s.writeSchemaPair(ctx, register, block, doc, result); err != nil {
		return err
	}

	if extends := block.Metadata.Extends; extends != nil && len(extends.ExtensionPoints) > 0 {
		composed, err := composer.Compose(ctx, block)
		if err != nil {
			return err
		}
		// The composed document supersedes the plain annotated schema.
		if err := s.writeSchemaPair(ctx, register, block, composed, result); err != nil {
			return err
		}
	}
	return nil
}

// writeSchemaPair writes the YAML document plus a JSON twin whose block
// references point at the JSON variants of their targets.
func (s *Service) writeSchemaPair(ctx context.Context, register *core.Register, block *types.Block, doc map[string]any, result *BuildResult) error {
	if err := s.Output.WriteYAML(ctx, block.AnnotatedSchema, doc); err != nil {
		return err
	}
	result.Written = append(result.Written, block.AnnotatedSchema)

	jsonDoc, _ := core.DeepCopy(doc).(map[string]any)
	core.RewriteRefs(jsonDoc, func(ref string, _ map[string]any) string {
		return s.jsonVariantRef(ctx, register, block, ref)
	})
	jsonPath := strings.TrimSuffix(block.AnnotatedSchema, filepath.Ext(block.AnnotatedSchema)) + ".json"
	if err := s.Output.WriteJSON(ctx, jsonPath, jsonDoc); err != nil {
		return err
	}
	result.Written = append(result.Written, jsonPath)
	return nil
}

// jsonVariantRef swaps the .yaml extension of a block schema reference
// for .json, so the JSON rendition stays within JSON documents. Other
// references pass through, with a warning for YAML targets that cannot
// be swapped.
func (s *Service) jsonVariantRef(ctx context.Context, register *core.Register, block *types.Block, ref string) string {
	location, fragment := shared.SplitFragment(ref)
	if fragment != "" {
		fragment = "#" + fragment
	}
	if !strings.HasSuffix(location, ".yaml") {
		return ref
	}
	swapped := strings.TrimSuffix(location, ".yaml") + ".json"
	if _, ok := register.LocalBlockFiles[register.CanonicalLocation(location)]; ok {
		return swapped + fragment
	}
	if _, ok := register.ImportedBlockFiles[location]; ok {
		return swapped + fragment
	}
	if !shared.IsURL(location) {
		resolved := shared.ResolveReference(block.AnnotatedSchema, location)
		if _, ok := register.LocalBlockFiles[register.CanonicalLocation(resolved)]; ok {
			return swapped + fragment
		}
	}
	log.Ctx(ctx).Warn().
		Str("block", block.Identifier).
		Str("ref", ref).
		Msg("YAML reference kept in JSON rendition")
	return ref
}

// writeOpenAPI republishes the block's OpenAPI document with block
// references rewritten to their published locations.
func (s *Service) writeOpenAPI(ctx context.Context, annotator *core.SchemaAnnotator, block *types.Block, result *BuildResult) error {
	data, err := s.Loader.Load(ctx, block.OpenAPIRef)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	var rewriteErr error
	core.RewriteRefs(doc, func(ref string, _ map[string]any) string {
		rewritten, err := annotator.RewriteReference(ctx, ref, block, block.OpenAPIRef)
		if err != nil {
			if rewriteErr == nil {
				rewriteErr = err
			}
			return ref
		}
		return rewritten
	})
	if rewriteErr != nil {
		return rewriteErr
	}
	if err := s.Output.WriteYAML(ctx, block.OutputOpenAPI, doc); err != nil {
		return err
	}
	result.Written = append(result.Written, block.OutputOpenAPI)
	return nil
}

// writeRegisterDocument publishes the flattened register.json consumed
// by downstream registers as an import.
func (s *Service) writeRegisterDocument(ctx context.Context, register *core.Register, result *BuildResult) error {
	summaries := make([]map[string]any, 0, len(register.Order))
	for _, block := range register.OrderedBlocks() {
		summary := map[string]any{
			"itemIdentifier": block.Identifier,
			"name":           block.Metadata.Name,
			"version":        block.Metadata.Version,
			"status":         block.Metadata.Status,
			"itemClass":      block.Metadata.ItemClass,
		}
		if deps := block.SortedDependsOn(); len(deps) > 0 {
			summary["dependsOn"] = deps
		}
		if block.HasSchema() {
			jsonSchema := strings.TrimSuffix(block.AnnotatedSchema, filepath.Ext(block.AnnotatedSchema)) + ".json"
			summary["schema"] = map[string]string{
				types.MediaTypeYAML: register.URLFor(block.AnnotatedSchema),
				types.MediaTypeJSON: register.URLFor(jsonSchema),
			}
			summary["sourceSchema"] = register.URLFor(block.SchemaRef)
		}
		if block.OutputOpenAPI != "" {
			summary["openAPIDocument"] = register.URLFor(block.OutputOpenAPI)
		}
		if rules := register.InheritedShaclRules(block.Identifier); len(rules) > 0 {
			shacl := map[string][]string{}
			for owner, set := range rules {
				sorted := append([]string{}, set...)
				sort.Strings(sorted)
				shacl[owner] = sorted
			}
			summary["shaclRules"] = shacl
		}
		summaries = append(summaries, summary)
	}
	document := map[string]any{"bblocks": summaries}
	if len(s.Options.ImportURLs) > 0 {
		document["imports"] = s.Options.ImportURLs
	}
	annotated, err := filepath.Abs(s.Options.AnnotatedPath)
	if err != nil {
		annotated = s.Options.AnnotatedPath
	}
	path := filepath.Join(annotated, "register.json")
	if err := s.Output.WriteJSON(ctx, path, document); err != nil {
		return err
	}
	result.Written = append(result.Written, path)
	return nil
}
