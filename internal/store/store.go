// Package store defines the narrow port to the transactional,
// real-time-subscribable document database the quiz core runs against.
// Documents live under slash-separated paths organized as collections of
// documents with sub-collections, e.g. groups/{gid}/answers/{aid}.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no document exists at the given path.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by CreateDocument when the path is already taken.
	ErrExists = errors.New("document already exists")
	// ErrInvalidPath is returned for paths with the wrong segment parity.
	ErrInvalidPath = errors.New("invalid document path")
)

// Fields is the schemaless field set of a document. Values are restricted to
// JSON-compatible types plus time.Time for instants.
type Fields map[string]any

// Document is a point-read result.
type Document struct {
	// ID is the last path segment.
	ID string
	// Path is the full document path.
	Path string
	// Fields holds the document contents.
	Fields Fields
}

// ChangeFunc receives committed changes for a subscribed path. For a document
// path it fires on every write to that document; for a collection path it
// fires on membership or content change of the collection's documents.
type ChangeFunc func(doc Document)

// Store is the document database port. All writes are durable once the call
// returns; CreateDocument and IncrementField are atomic with respect to
// concurrent callers on the same path.
type Store interface {
	// GetDocument point-reads a document. Returns ErrNotFound when absent.
	GetDocument(ctx context.Context, path string) (Document, error)

	// SetDocument writes a document. With merge=true existing fields not
	// present in fields are preserved (field-level upsert); with merge=false
	// the document is replaced.
	SetDocument(ctx context.Context, path string, fields Fields, merge bool) error

	// CreateDocument writes a document only if the path is vacant. Returns
	// ErrExists otherwise. The existence check and the write are a single
	// atomic step.
	CreateDocument(ctx context.Context, path string, fields Fields) error

	// AddDocument appends a document with a generated id to a collection and
	// returns the id.
	AddDocument(ctx context.Context, collectionPath string, fields Fields) (string, error)

	// IncrementField atomically adds delta to a numeric field, treating a
	// missing field as zero. The target document is created when absent.
	IncrementField(ctx context.Context, path string, field string, delta int64) error

	// QueryEquals returns up to limit documents of a collection whose field
	// equals value. limit <= 0 means no limit.
	QueryEquals(ctx context.Context, collectionPath string, field string, value any, limit int) ([]Document, error)

	// ListDocuments returns every document of a collection.
	ListDocuments(ctx context.Context, collectionPath string) ([]Document, error)

	// DeleteTree removes a document together with all of its sub-collections,
	// or an entire collection when given a collection path.
	DeleteTree(ctx context.Context, path string) error

	// Subscribe registers fn for changes under path and returns an
	// unsubscribe function. The unsubscribe function is idempotent and must
	// be called on teardown; after it returns fn is never invoked again.
	Subscribe(ctx context.Context, path string, fn ChangeFunc) (func(), error)

	// ServerInstant returns a server-assigned timestamp, independent of any
	// client clock.
	ServerInstant() time.Time
}
