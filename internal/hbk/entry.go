// Package hbk decodes 1C .hbk documentation archives into structured
// entries. An .hbk container is a vendor header, a ZIP payload with the
// HTML help pages, and an optional trailer.
package hbk

// Kind classifies a documented syntax unit.
type Kind string

const (
	KindGlobalFunction Kind = "global_function"
	KindObjectType     Kind = "object_type"
	KindMethod         Kind = "method"
	KindProperty       Kind = "property"
	KindEvent          Kind = "event"
)

// Parameter describes one formal parameter of a method or function.
type Parameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// Entry is one documented syntax unit decoded from the archive.
// Entries are created only during a parse pass and are immutable
// afterwards; (Kind, Owner, Name) is unique within a pass.
type Entry struct {
	Kind Kind `json:"kind"`

	// Name is the canonical (Russian) identifier; Aliases holds the
	// alternate-language spellings, usually the English name.
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`

	// Owner is the enclosing ObjectType name. Empty for global
	// functions and top-level object types.
	Owner string `json:"owner,omitempty"`

	Signature  string      `json:"signature,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`

	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`

	// Version is the platform version the section was introduced in,
	// taken from the __categories__ metadata when present.
	Version string `json:"version,omitempty"`

	// SourcePath and SourceOffset locate the page inside the archive.
	// Diagnostics only; never used for lookups.
	SourcePath   string `json:"source_path,omitempty"`
	SourceOffset int64  `json:"source_offset,omitempty"`
}
