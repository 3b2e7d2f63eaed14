// Package store owns the document-store side of the pipeline: the capability
// the event router writes through and the supervisor that keeps a live
// MongoDB handle behind it.
package store

import "context"

// Store is the document-store capability. Documents are keyed by an "_id"
// value unique within a collection.
type Store interface {
	// UpsertMerge merges the partial document's top-level fields into the
	// document under key, creating it when absent.
	UpsertMerge(ctx context.Context, collection, key string, doc map[string]any) error
	// AppendToList appends one item to the named list field, creating the
	// document and the list when absent. Prior entries are never rewritten.
	AppendToList(ctx context.Context, collection, key, field string, item any) error
	// FetchOne returns the document under key, or nil without error when it
	// does not exist.
	FetchOne(ctx context.Context, collection, key string) (map[string]any, error)
}
