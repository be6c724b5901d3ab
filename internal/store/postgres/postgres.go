// Package postgres implements the document store port on a single
// `documents` table (path -> JSONB fields). Row-level atomicity gives the
// two guarantees the scoring protocol leans on: create-if-absent is one
// INSERT ... ON CONFLICT DO NOTHING, and numeric increments are one UPDATE.
// Change notification fans out through a Redis pub/sub channel so every API
// instance sees every committed write.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/store"
)

// DefaultChannel is the Redis pub/sub channel carrying change events.
const DefaultChannel = "store:changes"

// Store is the pgx-backed document store.
type Store struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	channel string
	logger  zerolog.Logger

	mu   sync.Mutex
	subs map[int]subscription
	next int

	cancel context.CancelFunc
}

type subscription struct {
	path string
	fn   store.ChangeFunc
}

type changeEvent struct {
	Path   string       `json:"path"`
	Fields store.Fields `json:"fields"`
}

// New creates the store and starts the change-listener loop. Close releases
// the listener; the pool and Redis client stay owned by the caller.
func New(pool *pgxpool.Pool, redisClient *redis.Client, channel string, logger zerolog.Logger) *Store {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &Store{
		pool:    pool,
		redis:   redisClient,
		channel: channel,
		logger:  logger.With().Str("component", "document_store").Logger(),
		subs:    make(map[int]subscription),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(ctx)
	return s
}

// Close stops the change listener.
func (s *Store) Close() {
	s.cancel()
}

// ServerInstant returns the service-side clock. Submissions and round
// starts are stamped here, on the API server, never from a browser clock.
func (s *Store) ServerInstant() time.Time {
	return time.Now().UTC()
}

// GetDocument implements store.Store.
func (s *Store) GetDocument(ctx context.Context, path string) (store.Document, error) {
	if !store.ValidDocumentPath(path) {
		return store.Document{}, store.ErrInvalidPath
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT fields FROM documents WHERE path = $1`, path).Scan(&raw)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("select document: %w", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: store.DocumentID(path), Path: path, Fields: fields}, nil
}

// SetDocument implements store.Store. merge=true relies on the JSONB
// concatenation operator for the field-level upsert.
func (s *Store) SetDocument(ctx context.Context, path string, fields store.Fields, merge bool) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (path, collection, fields, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`
	if merge {
		query = `
		INSERT INTO documents (path, collection, fields, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO UPDATE SET fields = documents.fields || EXCLUDED.fields, updated_at = now()`
	}
	if _, err := s.pool.Exec(ctx, query, path, store.ParentCollection(path), raw); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	s.publish(ctx, path)
	return nil
}

// CreateDocument implements the atomic create-if-absent write.
func (s *Store) CreateDocument(ctx context.Context, path string, fields store.Fields) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, fields, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO NOTHING`,
		path, store.ParentCollection(path), raw)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrExists
	}
	s.publish(ctx, path)
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

// IncrementField implements the atomic counter bump. The whole
// read-modify-write happens inside one UPDATE, so concurrent increments on
// the same field serialize on the row lock.
func (s *Store) IncrementField(ctx context.Context, path string, field string, delta int64) error {
	if !store.ValidDocumentPath(path) {
		return store.ErrInvalidPath
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (path, collection, fields, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint), now())
		ON CONFLICT (path) DO UPDATE SET
			fields = documents.fields ||
				jsonb_build_object($3::text, COALESCE((documents.fields->>$3)::bigint, 0) + $4::bigint),
			updated_at = now()`,
		path, store.ParentCollection(path), field, delta)
	if err != nil {
		return fmt.Errorf("increment field: %w", err)
	}
	s.publish(ctx, path)
	return nil
}

// QueryEquals implements the equality-with-limit query over a collection.
func (s *Store) QueryEquals(ctx context.Context, collectionPath string, field string, value any, limit int) ([]store.Document, error) {
	if !store.ValidCollectionPath(collectionPath) {
		return nil, store.ErrInvalidPath
	}
	query := `SELECT path, fields FROM documents WHERE collection = $1 AND fields->>$2 = $3`
	args := []any{collectionPath, field, jsonText(value)}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	return s.queryDocuments(ctx, query, args...)
}

// ListDocuments implements store.Store.
func (s *Store) ListDocuments(ctx context.Context, collectionPath string) ([]store.Document, error) {
	if !store.ValidCollectionPath(collectionPath) {
		return nil, store.ErrInvalidPath
	}
	return s.queryDocuments(ctx,
		`SELECT path, fields FROM documents WHERE collection = $1`, collectionPath)
}

// DeleteTree removes a document or collection and everything beneath it.
func (s *Store) DeleteTree(ctx context.Context, path string) error {
	prefix := strings.Trim(path, "/")
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE path = $1 OR path LIKE $1 || '/%'`, prefix)
	if err != nil {
		return fmt.Errorf("delete tree: %w", err)
	}
	return nil
}

// Subscribe implements store.Store on top of the Redis change channel.
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

// publish pushes the document's fresh contents onto the change channel.
// Best effort: a lost notification degrades liveness of watchers, never
// correctness of stored data.
func (s *Store) publish(ctx context.Context, path string) {
	if s.redis == nil {
		return
	}
	doc, err := s.GetDocument(ctx, path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("change read-back failed")
		return
	}
	payload, err := json.Marshal(changeEvent{Path: path, Fields: doc.Fields})
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("change publish failed")
	}
}

// listen consumes the change channel and fans events out to matching local
// subscribers.
func (s *Store) listen(ctx context.Context) {
	if s.redis == nil {
		return
	}
	sub := s.redis.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Store) dispatch(payload string) {
	var evt changeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		s.logger.Warn().Err(err).Msg("bad change event payload")
		return
	}
	doc := store.Document{ID: store.DocumentID(evt.Path), Path: evt.Path, Fields: evt.Fields}
	parent := store.ParentCollection(evt.Path)

	s.mu.Lock()
	var fns []store.ChangeFunc
	for _, sub := range s.subs {
		if sub.path == evt.Path || sub.path == parent {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(doc)
	}
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Document{ID: store.DocumentID(path), Path: path, Fields: fields})
	}
	return out, rows.Err()
}

func encodeFields(fields store.Fields) ([]byte, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return raw, nil
}

func decodeFields(raw []byte) (store.Fields, error) {
	var fields store.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// jsonText renders a query value the way ->> renders stored JSON scalars.
func jsonText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}
