package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"bblocks-register/internal/ports"
	"bblocks-register/internal/types"
)

// metadataSchema validates bblock.json files before decoding. Unknown
// members are allowed and preserved; only shapes that would break the
// build are rejected here.
const metadataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "status", "itemClass", "version"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "abstract": {"type": "string"},
    "status": {"enum": ["stable", "under-development", "deprecated", "valid", "experimental", "retired"]},
    "itemClass": {"enum": ["schema", "datatype", "path", "parameter", "header", "api", "model"]},
    "version": {"type": "string"},
    "maturity": {"enum": ["mature", "proposal", "development", "stable"]},
    "scope": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "schema": {"type": "string"},
    "openAPIDocument": {"type": "string"},
    "dependsOn": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    },
    "extends": {
      "oneOf": [
        {"type": "string"},
        {
          "type": "object",
          "required": ["itemIdentifier"],
          "properties": {
            "itemIdentifier": {"type": "string"},
            "path": {"type": "string"},
            "extensionPoints": {
              "type": "object",
              "additionalProperties": {"type": "string"}
            }
          }
        }
      ]
    },
    "shaclRules": {"type": "array", "items": {"type": "string"}},
    "superBBlock": {"type": "boolean"}
  }
}`

// CatalogAdapter discovers building blocks beneath the items directory.
// One block per bblock.json, identified by its directory path.
type CatalogAdapter struct {
	ItemsPath     string
	AnnotatedPath string
	Prefix        string
	FailOnError   bool

	validator *jsonschema.Schema
}

var _ ports.CatalogPort = (*CatalogAdapter)(nil)

func NewCatalogAdapter(opts types.BuildOptions) (*CatalogAdapter, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bblock-metadata.json", strings.NewReader(metadataSchema)); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to register metadata schema").
			WithCause(err)
	}
	validator, err := compiler.Compile("bblock-metadata.json")
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to compile metadata schema").
			WithCause(err)
	}
	items, err := filepath.Abs(opts.ItemsPath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid items path: " + opts.ItemsPath).
			WithCause(err)
	}
	annotated, err := filepath.Abs(opts.AnnotatedPath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid annotated path: " + opts.AnnotatedPath).
			WithCause(err)
	}
	return &CatalogAdapter{
		ItemsPath:     items,
		AnnotatedPath: annotated,
		Prefix:        opts.Prefix,
		FailOnError:   opts.FailOnError,
		validator:     validator,
	}, nil
}

// Scan walks the items tree and builds one Block per metadata file, in
// lexical walk order. A malformed block is fatal or logged and skipped
// depending on the fail-on-error switch; a duplicate identifier is
// always fatal.
func (c *CatalogAdapter) Scan(ctx context.Context) ([]*types.Block, error) {
	var metadataFiles []string
	err := filepath.WalkDir(c.ItemsPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && entry.Name() == types.MetadataFileName {
			metadataFiles = append(metadataFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to scan items directory " + c.ItemsPath).
			WithCause(err)
	}

	seen := map[string]string{}
	var blocks []*types.Block
	for _, metadataFile := range metadataFiles {
		block, err := c.loadBlock(ctx, metadataFile)
		if err != nil {
			if c.FailOnError {
				return nil, err
			}
			log.Ctx(ctx).Error().Err(err).Str("metadata", metadataFile).Msg("skipping building block")
			continue
		}
		if previous, dup := seen[block.Identifier]; dup {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg("duplicate building block identifier " + block.Identifier +
					" (" + previous + " and " + metadataFile + ")")
		}
		seen[block.Identifier] = metadataFile
		blocks = append(blocks, block)
	}
	log.Ctx(ctx).Info().Int("blocks", len(blocks)).Str("items", c.ItemsPath).Msg("catalog scanned")
	return blocks, nil
}

func (c *CatalogAdapter) loadBlock(ctx context.Context, metadataFile string) (*types.Block, error) {
	data, err := os.ReadFile(metadataFile)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read " + metadataFile).
			WithCause(err)
	}

	var raw any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("malformed metadata in " + metadataFile).
			WithCause(err)
	}
	if err := c.validator.Validate(raw); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid metadata in " + metadataFile).
			WithCause(err)
	}

	var metadata types.BlockMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("malformed metadata in " + metadataFile).
			WithCause(err)
	}

	filesPath := filepath.Dir(metadataFile)
	subdirs, err := filepath.Rel(c.ItemsPath, filesPath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("building block outside items directory: " + metadataFile).
			WithCause(err)
	}
	identifier := c.identifierFor(subdirs)
	metadata.ItemIdentifier = identifier

	annotatedPath := filepath.Join(c.AnnotatedPath, subdirs)
	block := &types.Block{
		Identifier:      identifier,
		MetadataFile:    metadataFile,
		FilesPath:       filesPath,
		Subdirs:         filepath.ToSlash(subdirs),
		AnnotatedPath:   annotatedPath,
		AnnotatedSchema: filepath.Join(annotatedPath, "schema.yaml"),
		Metadata:        metadata,
		DependsOn:       map[string]struct{}{},
	}

	c.attachSchema(block)
	c.attachOpenAPI(block)
	c.attachShaclRules(block)
	if err := c.attachExamples(ctx, block); err != nil {
		return nil, err
	}
	if testsDir := filepath.Join(filesPath, types.TestsDirName); dirExists(testsDir) {
		block.TestsDir = testsDir
	}
	return block, nil
}

// identifierFor derives the block identifier from its directory path.
// Underscore-prefixed segments group blocks on disk without widening
// the identifier.
func (c *CatalogAdapter) identifierFor(subdirs string) string {
	var segments []string
	for _, segment := range strings.Split(filepath.ToSlash(subdirs), "/") {
		if segment == "" || segment == "." || strings.HasPrefix(segment, "_") {
			continue
		}
		segments = append(segments, segment)
	}
	identifier := c.Prefix + strings.Join(segments, ".")
	return strings.TrimSuffix(identifier, ".")
}

func (c *CatalogAdapter) attachSchema(block *types.Block) {
	if declared := block.Metadata.SchemaRef; declared != "" {
		block.SchemaRef = filepath.Join(block.FilesPath, filepath.FromSlash(declared))
		return
	}
	for _, name := range types.DefaultSchemaFileNames {
		candidate := filepath.Join(block.FilesPath, name)
		if fileExists(candidate) {
			block.SchemaRef = candidate
			return
		}
	}
}

func (c *CatalogAdapter) attachOpenAPI(block *types.Block) {
	candidate := filepath.Join(block.FilesPath, types.DefaultOpenAPIFileName)
	if declared := block.Metadata.OpenAPIDocument; declared != "" {
		candidate = filepath.Join(block.FilesPath, filepath.FromSlash(declared))
	}
	if fileExists(candidate) {
		block.OpenAPIRef = candidate
		block.OutputOpenAPI = filepath.Join(block.AnnotatedPath, filepath.Base(candidate))
	}
}

func (c *CatalogAdapter) attachShaclRules(block *types.Block) {
	block.ShaclRules = append(block.ShaclRules, block.Metadata.ShaclRules...)
	defaultRules := filepath.Join(block.FilesPath, types.DefaultShaclFileName)
	if fileExists(defaultRules) {
		block.ShaclRules = append(block.ShaclRules, defaultRules)
	}
}

// attachExamples reads examples.yaml when present and resolves
// snippet ref members relative to the block directory.
func (c *CatalogAdapter) attachExamples(ctx context.Context, block *types.Block) error {
	examplesFile := filepath.Join(block.FilesPath, types.ExamplesFileName)
	if !fileExists(examplesFile) {
		return nil
	}
	data, err := os.ReadFile(examplesFile)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read examples for " + block.Identifier).
			WithCause(err)
	}
	var examples []types.Example
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("malformed examples for " + block.Identifier).
			WithCause(err)
	}
	for i := range examples {
		for j := range examples[i].Snippets {
			snippet := &examples[i].Snippets[j]
			if snippet.Ref == "" || snippet.Code != "" {
				continue
			}
			snippetPath := filepath.Join(block.FilesPath, filepath.FromSlash(snippet.Ref))
			code, err := os.ReadFile(snippetPath)
			if err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg("unresolved snippet ref " + snippet.Ref + " for " + block.Identifier).
					WithCause(err)
			}
			snippet.Code = string(code)
		}
	}
	block.ExamplesFile = examplesFile
	block.Examples = examples
	log.Ctx(ctx).Debug().Str("block", block.Identifier).Int("examples", len(examples)).Msg("examples loaded")
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
