package types

import "encoding/json"

// Media types under which remote registers advertise block schemas.
const (
	MediaTypeYAML = "application/yaml"
	MediaTypeJSON = "application/json"
)

// ImportedBlockSummary is the read-only counterpart of a Block for
// entries that live in a remote register. It is created by the import
// index and never mutated afterwards.
type ImportedBlockSummary struct {
	ItemIdentifier  string            `json:"itemIdentifier"`
	Name            string            `json:"name,omitempty"`
	DependsOn       []string          `json:"dependsOn,omitempty"`
	Schema          map[string]string `json:"schema,omitempty"`
	SourceSchema    string            `json:"sourceSchema,omitempty"`
	OpenAPIDocument OpenAPIRefs       `json:"openAPIDocument,omitempty"`
	ShaclRules      ShaclRuleSet      `json:"shaclRules,omitempty"`
}

// PreferredSchema returns the advertised annotated schema URL, trying
// YAML first, then JSON. Empty when the block has no schema.
func (s *ImportedBlockSummary) PreferredSchema() string {
	if v := s.Schema[MediaTypeYAML]; v != "" {
		return v
	}
	return s.Schema[MediaTypeJSON]
}

// SchemaLocations lists every document URL the summary advertises that
// may be referenced from other schemas.
func (s *ImportedBlockSummary) SchemaLocations() []string {
	var out []string
	for _, v := range s.Schema {
		out = append(out, v)
	}
	if s.SourceSchema != "" {
		out = append(out, s.SourceSchema)
	}
	out = append(out, s.OpenAPIDocument...)
	return out
}

// OpenAPIRefs accepts the three shapes registers use for OpenAPI
// documents: a single URL, a list of URLs, or a media-type map.
type OpenAPIRefs []string

func (o *OpenAPIRefs) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*o = OpenAPIRefs{one}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*o = OpenAPIRefs(list)
		return nil
	}
	var byType map[string]string
	if err := json.Unmarshal(data, &byType); err != nil {
		return err
	}
	*o = nil
	for _, v := range byType {
		*o = append(*o, v)
	}
	return nil
}

// ShaclRuleSet accepts both the flat list form used by local blocks and
// the per-identifier map form that remote registers advertise for
// inherited rules.
type ShaclRuleSet map[string][]string

func (s *ShaclRuleSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = ShaclRuleSet{"": list}
		return nil
	}
	var byID map[string][]string
	if err := json.Unmarshal(data, &byID); err != nil {
		return err
	}
	*s = ShaclRuleSet(byID)
	return nil
}

// RegisterDocument is one remote register metadata document: either a
// bare list of block summaries, or an object carrying the list plus
// further registers to import.
type RegisterDocument struct {
	Blocks  []*ImportedBlockSummary `json:"bblocks"`
	Imports []string                `json:"imports,omitempty"`
}

func (d *RegisterDocument) UnmarshalJSON(data []byte) error {
	var list []*ImportedBlockSummary
	if err := json.Unmarshal(data, &list); err == nil {
		*d = RegisterDocument{Blocks: list}
		return nil
	}
	type alias RegisterDocument
	var full alias
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*d = RegisterDocument(full)
	return nil
}
