package types

// BuildOptions carries the run configuration shared by the build,
// graph and validate commands.
type BuildOptions struct {
	// ItemsPath is the root of the local item tree.
	ItemsPath string

	// AnnotatedPath is the root under which annotated and composed
	// schemas are written, mirroring the item tree layout.
	AnnotatedPath string

	// Prefix is prepended to computed identifiers, e.g. "ogc.".
	Prefix string

	// BaseURL, when set, is used to advertise absolute URLs for local
	// documents. Must end with a slash.
	BaseURL string

	// ImportURLs lists remote register documents to import.
	ImportURLs []string

	// FailOnError aborts the whole run on the first per-block
	// processing error instead of logging and skipping the block.
	FailOnError bool
}
