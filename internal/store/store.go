// Package store defines the narrow client interface to the searchable
// document store and its bleve-backed implementation. The store holds
// one serving alias plus at most two index generations at any time:
// the current one and an in-progress build.
package store

import "context"

// Store is the document store client. Writes target a named
// generation; reads always go through the serving alias, so a search
// is never affected by an in-progress build until SwapAlias commits it.
type Store interface {
	// BeginGeneration creates a new, uniquely-named, empty index
	// generation and returns its name.
	BeginGeneration(ctx context.Context) (string, error)

	// BulkIndex writes a batch of documents into a generation created
	// by BeginGeneration.
	BulkIndex(ctx context.Context, generation string, docs []*IndexDocument) error

	// SwapAlias atomically repoints the serving alias to the given
	// generation and drops the previously active one.
	SwapAlias(ctx context.Context, generation string) error

	// AbortGeneration discards a partially built generation. The
	// serving alias is untouched.
	AbortGeneration(ctx context.Context, generation string) error

	// Search executes a query through the serving alias.
	Search(ctx context.Context, q *Query) ([]*Hit, error)

	// Count returns the number of documents behind the alias.
	Count(ctx context.Context) (uint64, error)

	// ActiveGeneration returns the name of the generation behind the
	// alias, or empty when no rebuild has ever succeeded.
	ActiveGeneration() string

	// Healthy reports whether the store is reachable and readable.
	Healthy(ctx context.Context) bool

	// Close releases all open index resources.
	Close() error
}
