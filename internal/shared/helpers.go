// Package shared provides common path/URL utilities used across
// multiple packages in the bblocks-register codebase.
package shared

import (
	"net/url"
	"path/filepath"
	"strings"
)

// IsURL reports whether the value carries an explicit http(s) scheme.
func IsURL(value string) bool {
	if !strings.Contains(value, "://") {
		return false
	}
	u, err := url.Parse(value)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// SplitFragment splits "doc.yaml#/a/b" into ("doc.yaml", "/a/b").
// The fragment is returned without the leading '#'.
func SplitFragment(ref string) (string, string) {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// ResolveReference resolves ref against the document it appeared in.
// URL bases use RFC 3986 resolution; path bases resolve against the
// document's directory. Absolute refs are returned cleaned.
func ResolveReference(fromDocument, ref string) string {
	if IsURL(ref) {
		return ref
	}
	if IsURL(fromDocument) {
		base, err := url.Parse(fromDocument)
		if err != nil {
			return ref
		}
		rel, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return base.ResolveReference(rel).String()
	}
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(filepath.Dir(fromDocument), filepath.FromSlash(ref))
}

// RelativePath renders target relative to fromDir with forward slashes
// so the result is usable as a $ref value. URLs are returned untouched.
func RelativePath(target, fromDir string) string {
	if IsURL(target) {
		return target
	}
	rel, err := filepath.Rel(fromDir, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// JoinURL appends a relative path to a base URL. Base URLs are expected
// to end with a slash, matching how registers advertise them.
func JoinURL(base, rel string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}
