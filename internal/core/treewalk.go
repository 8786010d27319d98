package core

// RefAnnotation is left on subschemas by the semantic annotation step
// to record the original reference before rewriting. Scanners prefer it
// over $ref when both are present.
const RefAnnotation = "x-bblocks-ref"

// VisitRefs walks a decoded JSON-Schema-shaped document depth-first and
// invokes fn for every subschema map carrying a string reference. The
// reference-bearing values themselves are not descended into.
func VisitRefs(doc any, fn func(ref string, node map[string]any)) {
	switch node := doc.(type) {
	case map[string]any:
		ref, hasRef := refOf(node)
		if hasRef {
			fn(ref, node)
		}
		for key, value := range node {
			if key == "$ref" || key == RefAnnotation {
				if _, isString := value.(string); isString {
					continue
				}
			}
			VisitRefs(value, fn)
		}
	case []any:
		for _, item := range node {
			VisitRefs(item, fn)
		}
	}
}

// RewriteRefs rewrites every $ref value in place via fn. Subschemas
// annotated with RefAnnotation have the annotation consumed first, so
// the rewrite starts from the original reference.
func RewriteRefs(doc any, fn func(ref string, node map[string]any) string) {
	switch node := doc.(type) {
	case map[string]any:
		if ref, ok := node["$ref"].(string); ok {
			if annotated, ok := node[RefAnnotation].(string); ok {
				ref = annotated
				delete(node, RefAnnotation)
			}
			node["$ref"] = fn(ref, node)
		}
		for key, value := range node {
			if key == "$ref" {
				continue
			}
			RewriteRefs(value, fn)
		}
	case []any:
		for _, item := range node {
			RewriteRefs(item, fn)
		}
	}
}

// DeepCopy returns a structural copy of a decoded document so callers
// can mutate it without corrupting the resolver cache.
func DeepCopy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		return v
	}
}

func refOf(node map[string]any) (string, bool) {
	if ref, ok := node[RefAnnotation].(string); ok {
		return ref, true
	}
	ref, ok := node["$ref"].(string)
	return ref, ok
}
