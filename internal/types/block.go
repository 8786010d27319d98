package types

import (
	"encoding/json"
	"sort"
)

const (
	// MetadataFileName is the per-block metadata file looked up during
	// catalog scans.
	MetadataFileName = "bblock.json"

	// DefaultOpenAPIFileName is the conventional OpenAPI document name.
	DefaultOpenAPIFileName = "openapi.yaml"

	// DefaultShaclFileName is picked up automatically when present in a
	// block directory.
	DefaultShaclFileName = "rules.shacl"

	// ExamplesFileName holds a block's example list.
	ExamplesFileName = "examples.yaml"

	// TestsDirName is the conventional per-block test resources directory.
	TestsDirName = "tests"
)

// DefaultSchemaFileNames are tried in order when metadata does not name
// a schema explicitly.
var DefaultSchemaFileNames = []string{"schema.yaml", "schema.json"}

// ExtendsDecl declares that a block extends another block, optionally
// substituting other blocks at named extension points and inserting the
// block's own schema at a dot-separated path inside the parent.
type ExtendsDecl struct {
	ItemIdentifier  string            `json:"itemIdentifier"`
	Path            string            `json:"path,omitempty"`
	ExtensionPoints map[string]string `json:"extensionPoints,omitempty"`
}

// UnmarshalJSON accepts both the shorthand string form ("parent.id")
// and the full object form.
func (e *ExtendsDecl) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*e = ExtendsDecl{ItemIdentifier: id}
		return nil
	}
	type alias ExtendsDecl
	var full alias
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*e = ExtendsDecl(full)
	return nil
}

// SortedExtensionPoints returns the substitution pairs in deterministic
// source-identifier order.
func (e *ExtendsDecl) SortedExtensionPoints() []ExtensionPoint {
	points := make([]ExtensionPoint, 0, len(e.ExtensionPoints))
	for source, target := range e.ExtensionPoints {
		points = append(points, ExtensionPoint{Source: source, Target: target})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Source < points[j].Source })
	return points
}

// ExtensionPoint is one (source block -> target block) substitution.
type ExtensionPoint struct {
	Source string
	Target string
}

// BlockMetadata is the typed view of a block's bblock.json. Keys the
// register does not interpret are kept verbatim in Extra.
type BlockMetadata struct {
	ItemIdentifier  string
	Name            string
	Abstract        string
	Status          string
	ItemClass       string
	Version         string
	Maturity        string
	Scope           string
	Tags            []string
	SchemaRef       string
	OpenAPIDocument string
	DependsOn       []string
	Extends         *ExtendsDecl
	ShaclRules      []string
	SuperBlock      bool
	Extra           map[string]any
}

func (m *BlockMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}
	if err := take("itemIdentifier", &m.ItemIdentifier); err != nil {
		return err
	}
	if err := take("name", &m.Name); err != nil {
		return err
	}
	if err := take("abstract", &m.Abstract); err != nil {
		return err
	}
	if err := take("status", &m.Status); err != nil {
		return err
	}
	if err := take("itemClass", &m.ItemClass); err != nil {
		return err
	}
	if err := take("version", &m.Version); err != nil {
		return err
	}
	if err := take("maturity", &m.Maturity); err != nil {
		return err
	}
	if err := take("scope", &m.Scope); err != nil {
		return err
	}
	if err := take("tags", &m.Tags); err != nil {
		return err
	}
	if err := take("schema", &m.SchemaRef); err != nil {
		return err
	}
	if err := take("openAPIDocument", &m.OpenAPIDocument); err != nil {
		return err
	}
	if err := take("superBBlock", &m.SuperBlock); err != nil {
		return err
	}
	if err := take("shaclRules", &m.ShaclRules); err != nil {
		return err
	}
	if v, ok := raw["dependsOn"]; ok {
		delete(raw, "dependsOn")
		// Accepts both a single identifier and a list of identifiers.
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			m.DependsOn = []string{one}
		} else if err := json.Unmarshal(v, &m.DependsOn); err != nil {
			return err
		}
	}
	if v, ok := raw["extends"]; ok {
		delete(raw, "extends")
		m.Extends = &ExtendsDecl{}
		if err := json.Unmarshal(v, m.Extends); err != nil {
			return err
		}
	}
	if len(raw) > 0 {
		m.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			m.Extra[k] = val
		}
	}
	return nil
}

// Example is one entry of a block's examples.yaml.
type Example struct {
	Title     string    `yaml:"title"`
	Content   string    `yaml:"content,omitempty"`
	Language  string    `yaml:"language,omitempty"`
	Snippets  []Snippet `yaml:"snippets,omitempty"`
	Highlight bool      `yaml:"highlight,omitempty"`
}

// Snippet is a code sample inside an example. Code may be inline or
// loaded from the file named by Ref.
type Snippet struct {
	Language string `yaml:"language"`
	Code     string `yaml:"code,omitempty"`
	Ref      string `yaml:"ref,omitempty"`
}

// Block is one local catalog entry. Paths are absolute; SchemaRef and
// OpenAPIRef may also be URLs when metadata points at remote documents.
type Block struct {
	Identifier   string
	MetadataFile string
	FilesPath    string
	Subdirs      string

	SchemaRef  string
	OpenAPIRef string

	AnnotatedPath   string
	AnnotatedSchema string
	OutputOpenAPI   string

	ExamplesFile string
	Examples     []Example
	TestsDir     string
	ShaclRules   []string

	Metadata BlockMetadata

	// DependsOn starts out as the declared dependencies and grows with
	// inferred edges during graph construction.
	DependsOn map[string]struct{}
}

// HasSchema reports whether the block carries a raw schema document.
func (b *Block) HasSchema() bool { return b.SchemaRef != "" }

// AddDependency records a dependency edge target, ignoring self-edges.
func (b *Block) AddDependency(id string) {
	if id == "" || id == b.Identifier {
		return
	}
	if b.DependsOn == nil {
		b.DependsOn = make(map[string]struct{})
	}
	b.DependsOn[id] = struct{}{}
}

// SortedDependsOn returns the dependency identifiers in lexical order.
func (b *Block) SortedDependsOn() []string {
	out := make([]string, 0, len(b.DependsOn))
	for id := range b.DependsOn {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
