package core

import (
	"context"
	"sort"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"bblocks-register/internal/shared"
	"bblocks-register/internal/types"
)

// Annotations marking where a substitution was spliced into the
// composed output.
const (
	ExtendsKey         = "x-extends"
	ExtensionsKey      = "x-extensions"
	ExtensionSourceKey = "x-extension-source"
	ExtensionTargetKey = "x-extension-target"
)

// Node tags beyond the literal schema keywords.
const tagEntry = "[]"

var schemaAllKeywords = []string{
	"$anchor", "$comment", "$defs", "$dynamicAnchor", "$dynamicRef", "$id", "$ref", "$schema",
	"$vocabulary", "additionalProperties", "allOf", "anyOf", "const", "contains",
	"contentEncoding", "contentMediaType", "contentSchema", "default", "dependentRequired",
	"dependentSchemas", "deprecated", "description", "else", "enum", "examples",
	"exclusiveMaximum", "exclusiveMinimum", "format", "if", "items", "maxContains",
	"maximum", "maxItems", "maxLength", "maxProperties", "minContains", "minimum", "minItems",
	"minLength", "minProperties", "multipleOf", "not", "oneOf", "pattern", "patternProperties",
	"prefixItems", "properties", "propertyNames", "readOnly", "required", "then", "title",
	"type", "unevaluatedItems", "unevaluatedProperties", "uniqueItems", "writeOnly",
}

var schemaMetadataKeywords = map[string]struct{}{
	"$anchor": {}, "$comment": {}, "$defs": {}, "$dynamicAnchor": {}, "$dynamicRef": {},
	"$id": {}, "$schema": {}, "$vocabulary": {}, "description": {}, "else": {},
	"examples": {}, "readOnly": {}, "title": {}, "writeOnly": {},
}

var schemaAliasKeywords = map[string]struct{}{
	"$ref": {}, "oneOf": {}, "allOf": {}, "anyOf": {},
}

// aliasAbortKeywords are the keywords whose presence stops alias-chain
// detection: anything that is neither metadata-only nor a wrapper.
var aliasAbortKeywords = func() map[string]struct{} {
	abort := map[string]struct{}{}
	for _, kw := range schemaAllKeywords {
		if _, meta := schemaMetadataKeywords[kw]; meta {
			continue
		}
		if _, alias := schemaAliasKeywords[kw]; alias {
			continue
		}
		abort[kw] = struct{}{}
	}
	return abort
}()

// SchemaNode mirrors one position of a resolved schema tree during
// composition. Preserve is monotone: marking a node also marks every
// ancestor up to the tree root.
type SchemaNode struct {
	Tag        string
	From       *ReferencedSchema
	Root       *SchemaNode
	Parent     *SchemaNode
	IsProperty bool
	Subschema  any
	Children   []*SchemaNode
	Preserve   bool
}

// MarkPreserve flags the node and its ancestor chain for inclusion in
// the composed output.
func (n *SchemaNode) MarkPreserve() {
	for node := n; node != nil && !node.Preserve; node = node.Parent {
		node.Preserve = true
	}
}

func (n *SchemaNode) payload() map[string]any {
	m, _ := n.Subschema.(map[string]any)
	return m
}

// ExtensionComposer produces the composed schema of a block that
// declares extension points over a parent block.
type ExtensionComposer struct {
	register *Register
	resolver *SchemaReferenceResolver
}

func NewExtensionComposer(register *Register, resolver *SchemaReferenceResolver) *ExtensionComposer {
	return &ExtensionComposer{register: register, resolver: resolver}
}

type extensionMapping struct {
	SourceID  string
	TargetID  string
	TargetRef string
}

// composition carries the mutable state of one Compose call: the
// substitution map (which may grow as aliases are discovered), the
// visited-reference set, and the independently rooted trees.
type composition struct {
	register *Register
	resolver *SchemaReferenceResolver
	block    *types.Block
	mappings map[string]extensionMapping
	visited  map[string]struct{}
	branches []*SchemaNode
	err      error
}

// Compose builds the composed output schema for the block's extends
// declaration. The parent's resolved schema is inherited by reference;
// only subtrees affected by a substitution are reproduced.
func (e *ExtensionComposer) Compose(ctx context.Context, block *types.Block) (map[string]any, error) {
	extends := block.Metadata.Extends
	if extends == nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("building block " + block.Identifier + " declares no extends")
	}
	assert.NotEmpty(ctx, extends.ItemIdentifier, "extends declaration must name a parent")
	parentID := extends.ItemIdentifier

	if strings.Contains(parentID, "#") {
		return nil, fragmentError()
	}
	for source, target := range extends.ExtensionPoints {
		if strings.Contains(source, "#") || strings.Contains(target, "#") {
			return nil, fragmentError()
		}
	}

	root, err := e.parentSchema(ctx, parentID)
	if err != nil {
		return nil, err
	}

	run := &composition{
		register: e.register,
		resolver: e.resolver,
		block:    block,
		mappings: map[string]extensionMapping{},
		visited:  map[string]struct{}{},
	}

	for _, point := range extends.SortedExtensionPoints() {
		if err := run.addSubstitution(ctx, point); err != nil {
			return nil, err
		}
	}

	if err := run.walkSubschema(ctx, DeepCopy(root.Contents), root, nil); err != nil {
		return nil, err
	}

	parentRef := root.Location
	if !shared.IsURL(parentRef) {
		parentRef = shared.RelativePath(parentRef, block.AnnotatedPath)
	}
	extensions := map[string]any{}
	for source, target := range extends.ExtensionPoints {
		extensions[source] = target
	}
	output := map[string]any{
		"$schema":     SchemaDialect,
		ExtendsKey:    parentID,
		ExtensionsKey: extensions,
		"allOf":       []any{map[string]any{"$ref": parentRef}},
	}

	preserved := 0
	for _, branch := range run.branches {
		if !branch.Preserve {
			continue
		}
		entry := map[string]any{}
		run.walkBranch(ctx, branch, entry, false)
		output["allOf"] = append(output["allOf"].([]any), collapseTrivialAllOf(entry))
		preserved++
	}
	if run.err != nil {
		return nil, run.err
	}
	log.Ctx(ctx).Debug().
		Str("block", block.Identifier).
		Str("parent", parentID).
		Int("branches", preserved).
		Msg("extension composed")
	return output, nil
}

// parentSchema resolves the fully annotated schema of the extended
// block. OpenAPI-only parents are rejected.
func (e *ExtensionComposer) parentSchema(ctx context.Context, parentID string) (*ReferencedSchema, error) {
	block, imported := e.register.Lookup(parentID)
	switch {
	case block != nil:
		if !block.HasSchema() {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("building block " + parentID + " has no schema and cannot be extended")
		}
		return e.resolver.Resolve(ctx, block.AnnotatedSchema, nil)
	case imported != nil:
		schema := imported.PreferredSchema()
		if schema == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("could not find a schema for building block " + parentID + " in register or imports")
		}
		return e.resolver.Resolve(ctx, schema, nil)
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("could not find building block " + parentID + " in register or imports")
	}
}

// addSubstitution resolves both sides of one extension point and
// registers the source schema location, plus every alias of it, in the
// substitution map.
func (c *composition) addSubstitution(ctx context.Context, point types.ExtensionPoint) error {
	targetRef, err := c.sideSchemaRef(point.Target, true)
	if err != nil {
		return err
	}
	sourceLocation, err := c.sideSchemaRef(point.Source, false)
	if err != nil {
		return err
	}

	mapping := extensionMapping{
		SourceID:  point.Source,
		TargetID:  point.Target,
		TargetRef: targetRef,
	}
	c.mappings[c.canonicalKey(sourceLocation)] = mapping

	resolved, err := c.resolver.Resolve(ctx, sourceLocation, nil)
	if err != nil {
		return err
	}
	return c.extractAliases(ctx, resolved, mapping, map[string]struct{}{})
}

// sideSchemaRef finds the schema location of one side of a
// substitution. Target sides are rendered the way the composed output
// will reference them; source sides stay canonical for map lookups.
func (c *composition) sideSchemaRef(id string, asOutputRef bool) (string, error) {
	block, imported := c.register.Lookup(id)
	switch {
	case block != nil && block.HasSchema():
		if asOutputRef {
			if c.register.BaseURL != "" {
				return c.register.URLFor(block.AnnotatedSchema), nil
			}
			return shared.RelativePath(block.AnnotatedSchema, c.block.AnnotatedPath), nil
		}
		return block.AnnotatedSchema, nil
	case imported != nil:
		if schema := imported.PreferredSchema(); schema != "" {
			return schema, nil
		}
	case block == nil:
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("could not find building block " + id + " in register or imports")
	}
	return "", errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("extension requires a schema-bearing building block: " + id + " has no schema")
}

// extractAliases follows the chain of trivial wrapper schemas forward
// from a substitution source, registering every intermediate location
// under the same mapping. The chain aborts at the first schema carrying
// any keyword that is neither metadata-only nor a wrapper.
func (c *composition) extractAliases(ctx context.Context, schema *ReferencedSchema, mapping extensionMapping, seen map[string]struct{}) error {
	if _, dup := seen[schema.FullRef()]; dup {
		return nil
	}
	seen[schema.FullRef()] = struct{}{}

	sub := schema.Subschema
	for key := range sub {
		if _, abort := aliasAbortKeywords[key]; abort {
			return nil
		}
	}
	var aliasKeys []string
	for key := range schemaAliasKeywords {
		if _, present := sub[key]; present {
			aliasKeys = append(aliasKeys, key)
		}
	}
	if len(aliasKeys) != 1 {
		return nil
	}

	var ref string
	if aliasKeys[0] == "$ref" {
		ref, _ = sub["$ref"].(string)
	} else {
		entries, _ := sub[aliasKeys[0]].([]any)
		if len(entries) != 1 {
			return nil
		}
		entry, _ := entries[0].(map[string]any)
		ref, _ = entry["$ref"].(string)
	}
	if ref == "" {
		return nil
	}

	resolved, err := c.resolver.Resolve(ctx, ref, schema)
	if err != nil {
		return err
	}
	c.mappings[c.refKey(resolved)] = mapping
	return c.extractAliases(ctx, resolved, mapping, seen)
}

func (c *composition) canonicalKey(location string) string {
	canonical := c.register.CanonicalLocation(location)
	if c.register.BaseURL != "" && !shared.IsURL(canonical) {
		return c.register.URLFor(canonical)
	}
	return canonical
}

// refKey renders a resolved schema position as a substitution-map key.
func (c *composition) refKey(schema *ReferencedSchema) string {
	key := c.canonicalKey(schema.Location)
	if schema.Fragment != "" {
		key += "#" + schema.Fragment
	}
	return key
}

// createNode adds a tree node. Nodes without a parent root a new
// independent tree.
func (c *composition) createNode(parent *SchemaNode, tag string, from *ReferencedSchema, isProperty bool, subschema any) *SchemaNode {
	node := &SchemaNode{
		Tag:        tag,
		From:       from,
		Parent:     parent,
		IsProperty: isProperty,
		Subschema:  subschema,
	}
	if parent == nil {
		node.Root = node
		c.branches = append(c.branches, node)
	} else {
		node.Root = parent.Root
		parent.Children = append(parent.Children, node)
	}
	return node
}

// walkSubschema recursively mirrors a subschema into nodes, matching
// every resolved $ref against the substitution map. The subschema must
// be a private copy: handled keywords are consumed so that node
// payloads keep only the residue that is emitted verbatim.
func (c *composition) walkSubschema(ctx context.Context, sub any, from *ReferencedSchema, parentNode *SchemaNode) error {
	node, ok := sub.(map[string]any)
	if !ok || len(node) == 0 {
		return nil
	}

	if ref, ok := node["$ref"].(string); ok {
		delete(node, "$ref")
		target, err := c.resolver.Resolve(ctx, ref, from)
		if err != nil {
			return err
		}
		mapping, matched := c.mappings[c.refKey(target)]

		skipNode := false
		if matched {
			// Search up the chain of wrappers for a reference to the
			// same schema; a top-level single-entry combinator would
			// otherwise produce a duplicate node.
			for pn := parentNode; pn != nil; pn = pn.Parent {
				if pn.Tag == "$ref" {
					if payload := pn.payload(); payload != nil {
						if _, tagged := payload[ExtensionSourceKey]; tagged {
							skipNode = true
						} else if pnRef, ok := payload["$ref"].(string); ok {
							// Undetected alias found in another schema.
							if aliased, err := c.resolver.Resolve(ctx, pnRef, pn.From); err == nil {
								c.mappings[c.refKey(aliased)] = mapping
							}
						}
					}
				} else if pn.Tag != tagEntry && (!isCombinator(pn.Tag) || len(pn.Children) > 1) {
					break
				}
			}
		}

		var refNode *SchemaNode
		if skipNode {
			refNode = parentNode
		} else {
			payload := map[string]any{"$ref": ref}
			if matched {
				payload["$ref"] = mapping.TargetRef
				payload[ExtensionSourceKey] = mapping.SourceID
				payload[ExtensionTargetKey] = mapping.TargetID
			}
			refNode = c.createNode(parentNode, "$ref", from, false, payload)
			if matched {
				refNode.MarkPreserve()
			}
		}

		// Track visited locations so reference cycles terminate.
		fullRef := target.FullRef()
		if _, seen := c.visited[fullRef]; seen {
			return nil
		}
		c.visited[fullRef] = struct{}{}
		if err := c.walkSubschema(ctx, DeepCopy(target.Subschema), target, refNode); err != nil {
			return err
		}
	}

	for _, keyword := range []string{"oneOf", "allOf", "anyOf"} {
		entries, ok := node[keyword].([]any)
		if !ok || len(entries) == 0 {
			continue
		}
		delete(node, keyword)
		containerNode := c.createNode(parentNode, keyword, from, false, entries)
		for _, entry := range entries {
			entryNode := c.createNode(containerNode, tagEntry, from, false, entry)
			if err := c.walkSubschema(ctx, entry, from, entryNode); err != nil {
				return err
			}
		}
	}

	for _, keyword := range []string{"prefixItems", "items", "contains", "then", "else", "additionalProperties"} {
		child, ok := node[keyword].(map[string]any)
		if !ok {
			continue
		}
		delete(node, keyword)
		keywordNode := c.createNode(parentNode, keyword, from, false, child)
		if err := c.walkSubschema(ctx, child, from, keywordNode); err != nil {
			return err
		}
	}

	if properties, ok := node["properties"].(map[string]any); ok {
		delete(node, "properties")
		propertiesNode := c.createNode(parentNode, "properties", from, false, nil)
		for _, name := range sortedKeys(properties) {
			propNode := c.createNode(propertiesNode, name, from, true, properties[name])
			if err := c.walkSubschema(ctx, properties[name], from, propNode); err != nil {
				return err
			}
		}
	}

	if patterns, ok := node["patternProperties"].(map[string]any); ok && len(patterns) > 0 {
		delete(node, "patternProperties")
		patternsNode := c.createNode(parentNode, "patternProperties", from, false, nil)
		for _, pattern := range sortedKeys(patterns) {
			child, ok := patterns[pattern].(map[string]any)
			if !ok {
				continue
			}
			patternNode := c.createNode(patternsNode, pattern, from, true, nil)
			if err := c.walkSubschema(ctx, child, from, patternNode); err != nil {
				return err
			}
		}
	}
	return nil
}

// walkBranch reconstructs the output fragment for a preserved subtree.
// Emission force-propagates into every child of a oneOf/anyOf
// container: only one branch applies, so the whole branch must be
// reproduced faithfully. Plain allOf branches apply simultaneously and
// untouched ones stay inherited.
func (c *composition) walkBranch(ctx context.Context, node *SchemaNode, parentSchema map[string]any, force bool) {
	if !force && !node.Preserve {
		return
	}
	switch {
	case node.Tag == "$ref" && node.Subschema != nil && len(node.Children) == 0:
		emitted := c.updateRefs(ctx, node.Subschema, node.From, false)
		if len(parentSchema) > 0 {
			existing, _ := parentSchema["allOf"].([]any)
			parentSchema["allOf"] = append(existing, emitted)
		} else {
			mergeInto(parentSchema, emitted)
		}
	case isCombinator(node.Tag):
		entries, _ := parentSchema[node.Tag].([]any)
		childForce := force || node.Tag == "oneOf" || node.Tag == "anyOf"
		for _, child := range node.Children {
			if !childForce && !child.Preserve {
				continue
			}
			childSchema := map[string]any{}
			entries = append(entries, childSchema)
			c.walkBranch(ctx, child, childSchema, childForce)
		}
		parentSchema[node.Tag] = entries
	default:
		if node.Tag != tagEntry && node.Tag != "$ref" && len(node.Children) == 0 {
			// End of the line: the full residual payload is the diff leaf.
			parentSchema[node.Tag] = c.updateRefs(ctx, node.Subschema, node.From, false)
			return
		}
		walkParent := parentSchema
		if node.Tag == tagEntry || node.Tag == "$ref" {
			_, isExtensionPoint := node.payload()[ExtensionTargetKey]
			if node.Tag == tagEntry || isExtensionPoint {
				mergeInto(parentSchema, c.updateRefs(ctx, node.Subschema, node.From, false))
			}
		} else {
			nested := map[string]any{}
			parentSchema[node.Tag] = nested
			walkParent = nested
		}
		for _, child := range node.Children {
			c.walkBranch(ctx, child, walkParent, force)
		}
	}
}

// updateRefs rewrites every $ref of an emitted payload relative to the
// composed schema's own output location. Absolute URLs and already
// spliced extension points are left untouched.
func (c *composition) updateRefs(ctx context.Context, sub any, from *ReferencedSchema, isProperties bool) any {
	switch node := sub.(type) {
	case map[string]any:
		if !isProperties {
			if _, spliced := node[ExtensionSourceKey]; spliced {
				return node
			}
		}
		for key, value := range node {
			if !isProperties && key == "$ref" {
				ref, _ := value.(string)
				if ref == "" || shared.IsURL(ref) {
					continue
				}
				target, err := c.resolver.Resolve(ctx, ref, from)
				if err != nil {
					if c.err == nil {
						c.err = err
					}
					continue
				}
				node[key] = c.outputRef(target)
			} else {
				node[key] = c.updateRefs(ctx, value, from, !isProperties && key == "properties")
			}
		}
		return node
	case []any:
		for i := range node {
			node[i] = c.updateRefs(ctx, node[i], from, false)
		}
		return node
	default:
		return sub
	}
}

// outputRef renders a resolved schema position as a $ref usable from
// the composed schema's location.
func (c *composition) outputRef(target *ReferencedSchema) string {
	location := target.Location
	if !shared.IsURL(location) {
		if c.register.BaseURL != "" {
			location = c.register.URLFor(location)
		} else {
			location = shared.RelativePath(location, c.block.AnnotatedPath)
		}
	}
	if target.Fragment != "" {
		location += "#" + target.Fragment
	}
	return location
}

func isCombinator(tag string) bool {
	return tag == "oneOf" || tag == "allOf" || tag == "anyOf"
}

func mergeInto(dst map[string]any, src any) {
	m, ok := src.(map[string]any)
	if !ok {
		return
	}
	for key, value := range m {
		dst[key] = value
	}
}

// collapseTrivialAllOf unwraps branches that consist of nothing but a
// single-entry allOf, so a substitution reached through a wrapper
// emits the spliced reference directly.
func collapseTrivialAllOf(branch map[string]any) map[string]any {
	for len(branch) == 1 {
		entries, ok := branch["allOf"].([]any)
		if !ok || len(entries) != 1 {
			break
		}
		inner, ok := entries[0].(map[string]any)
		if !ok {
			break
		}
		branch = inner
	}
	return branch
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func fragmentError() error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg("extension points can only be declared for building blocks, not for fragments;" +
			" check that the declarations contain no fragment identifiers (\"#\")")
}
