// Package memory provides an in-process Store implementation used by tests
// and single-node development setups. All operations are linearizable under
// one mutex, which makes CreateDocument and IncrementField trivially atomic.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WillSoph/top-game-score/internal/store"
)

// Store keeps every document in a flat path-keyed map.
type Store struct {
	mu    sync.Mutex
	docs  map[string]store.Fields
	subs  map[int]subscription
	next  int
	clock func() time.Time
}

type subscription struct {
	path string
	fn   store.ChangeFunc
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		docs:  make(map[string]store.Fields),
		subs:  make(map[int]subscription),
		clock: time.Now,
	}
}

// SetClock overrides the server clock, for tests.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// ServerInstant returns the store-assigned current time.
func (s *Store) ServerInstant() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock()
}

// GetDocument implements store.Store.
func (s *Store) GetDocument(_ context.Context, path string) (store.Document, error) {
	if !store.ValidDocumentPath(path) {
		return store.Document{}, store.ErrInvalidPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.docs[path]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: store.DocumentID(path), Path: path, Fields: fields.Clone()}, nil
}

// SetDocument implements store.Store.
func (s *Store) SetDocument(_ context.Context, path string, fields store.Fields, merge bool) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	s.mu.Lock()
	existing, ok := s.docs[path]
	if merge && ok {
		merged := existing.Clone()
		for k, v := range fields {
			merged[k] = v
		}
		s.docs[path] = merged
	} else {
		s.docs[path] = fields.Clone()
	}
	doc := store.Document{ID: store.DocumentID(path), Path: path, Fields: s.docs[path].Clone()}
	targets := s.matchingSubs(path)
	s.mu.Unlock()

	notify(targets, doc)
	return nil
}

// CreateDocument implements the atomic create-if-absent write.
func (s *Store) CreateDocument(_ context.Context, path string, fields store.Fields) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	s.mu.Lock()
	if _, ok := s.docs[path]; ok {
		s.mu.Unlock()
		return store.ErrExists
	}
	s.docs[path] = fields.Clone()
	doc := store.Document{ID: store.DocumentID(path), Path: path, Fields: fields.Clone()}
	targets := s.matchingSubs(path)
	s.mu.Unlock()

	notify(targets, doc)
	return nil
}

// AddDocument implements store.Store.
func (s *Store) AddDocument(ctx context.Context, collectionPath string, fields store.Fields) (string, error) {
	if !store.ValidCollectionPath(collectionPath) {
		return "", store.ErrInvalidPath
	}
	id := uuid.NewString()
	return id, s.SetDocument(ctx, collectionPath+"/"+id, fields, false)
}

// IncrementField implements the atomic counter bump.
func (s *Store) IncrementField(_ context.Context, path string, field string, delta int64) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	s.mu.Lock()
	fields, ok := s.docs[path]
	if !ok {
		fields = store.Fields{}
		s.docs[path] = fields
	}
	fields[field] = int64(fields.Int(field)) + delta
	doc := store.Document{ID: store.DocumentID(path), Path: path, Fields: fields.Clone()}
	targets := s.matchingSubs(path)
	s.mu.Unlock()

	notify(targets, doc)
	return nil
}

// QueryEquals implements the equality-with-limit query.
func (s *Store) QueryEquals(_ context.Context, collectionPath string, field string, value any, limit int) ([]store.Document, error) {
	if !store.ValidCollectionPath(collectionPath) {
		return nil, store.ErrInvalidPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Document
	for path, fields := range s.docs {
		if !directChild(collectionPath, path) {
			continue
		}
		if !store.EqualValue(fields[field], value) {
			continue
		}
		out = append(out, store.Document{ID: store.DocumentID(path), Path: path, Fields: fields.Clone()})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ListDocuments implements store.Store.
func (s *Store) ListDocuments(_ context.Context, collectionPath string) ([]store.Document, error) {
	if !store.ValidCollectionPath(collectionPath) {
		return nil, store.ErrInvalidPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Document
	for path, fields := range s.docs {
		if directChild(collectionPath, path) {
			out = append(out, store.Document{ID: store.DocumentID(path), Path: path, Fields: fields.Clone()})
		}
	}
	return out, nil
}

// DeleteTree removes a document or collection and everything beneath it.
func (s *Store) DeleteTree(_ context.Context, path string) error {
	prefix := strings.Trim(path, "/")
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := range s.docs {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			delete(s.docs, p)
		}
	}
	return nil
}

// Subscribe registers a change callback for a document or collection path.
func (s *Store) Subscribe(_ context.Context, path string, fn store.ChangeFunc) (func(), error) {
	path = strings.Trim(path, "/")
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscription{path: path, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

// matchingSubs must be called with the lock held; it snapshots the callbacks
// interested in a write to docPath so they can run without the lock.
func (s *Store) matchingSubs(docPath string) []store.ChangeFunc {
	parent := store.ParentCollection(docPath)
	var fns []store.ChangeFunc
	for _, sub := range s.subs {
		if sub.path == docPath || sub.path == parent {
			fns = append(fns, sub.fn)
		}
	}
	return fns
}

func notify(fns []store.ChangeFunc, doc store.Document) {
	for _, fn := range fns {
		fn(doc)
	}
}

func directChild(collectionPath, docPath string) bool {
	if !strings.HasPrefix(docPath, collectionPath+"/") {
		return false
	}
	rest := docPath[len(collectionPath)+1:]
	return !strings.Contains(rest, "/")
}
