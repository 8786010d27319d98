package core

import (
	"sort"
	"strings"
)

// ScannedReference is one outbound reference found in a document,
// together with the document it appeared in.
type ScannedReference struct {
	Ref            string
	SourceDocument string
}

// ScanDocument extracts the set of outbound references from a decoded
// schema or OpenAPI document. Fragments are stripped and references
// into the same document ("#...") are excluded. Results are
// deduplicated and returned in lexical order.
func ScanDocument(doc any, sourceDocument string) []ScannedReference {
	seen := map[string]struct{}{}
	VisitRefs(doc, func(ref string, _ map[string]any) {
		if i := strings.IndexByte(ref, '#'); i >= 0 {
			ref = ref[:i]
		}
		if ref == "" {
			return
		}
		seen[ref] = struct{}{}
	})
	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	out := make([]ScannedReference, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ScannedReference{Ref: ref, SourceDocument: sourceDocument})
	}
	return out
}
