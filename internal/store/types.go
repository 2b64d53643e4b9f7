package store

// IndexDocument is the search-optimized projection of one
// documentation entry. Documents are never mutated in place: a changed
// entry yields a new document with the same ID and is replaced
// wholesale during a rebuild.
type IndexDocument struct {
	// ID is a deterministic hash of kind+owner+name.
	ID string `json:"id"`

	// Name and OwnerName are normalized for matching; the display
	// variants preserve original casing.
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	OwnerName    string   `json:"owner"`
	OwnerDisplay string   `json:"owner_display"`
	Aliases      []string `json:"aliases,omitempty"`

	Kind       string `json:"kind"`
	MemberType string `json:"member_type,omitempty"`

	// Body concatenates description, example and signature for
	// free-text matching; the individual fields stay queryable for
	// context-biased search.
	Body        string `json:"body"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
	Signature   string `json:"signature,omitempty"`

	// Payload is the full source entry as JSON, stored for result
	// rendering, never indexed.
	Payload string `json:"payload"`
}

// Clause is one field predicate of a query.
type Clause struct {
	// Field names an IndexDocument field.
	Field string
	// Term matches the field exactly (keyword semantics).
	Term string
	// Match runs an analyzed full-text match instead.
	Match string
	// Boost scales the clause's score contribution; zero means 1.0.
	Boost float64
}

// Query is the narrow query-by-field shape the document store accepts.
// Must clauses are conjunctive filters; Should clauses form a scored
// disjunction.
type Query struct {
	Must   []Clause
	Should []Clause
	Limit  int
}

// Hit is one search result read back through the serving alias.
type Hit struct {
	ID    string
	Score float64

	Kind       string
	MemberType string
	Name       string
	Owner      string

	// Payload is the stored source-entry JSON.
	Payload string
}
