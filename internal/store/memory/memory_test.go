package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillSoph/top-game-score/internal/store"
)

func TestCreateDocumentIsCreateIfAbsent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, "groups/g1", store.Fields{"status": "draft"}))
	err := s.CreateDocument(ctx, "groups/g1", store.Fields{"status": "open"})
	assert.ErrorIs(t, err, store.ErrExists)

	doc, err := s.GetDocument(ctx, "groups/g1")
	require.NoError(t, err)
	assert.Equal(t, "draft", doc.Fields.String("status"))
}

func TestCreateDocumentConcurrentRace(t *testing.T) {
	s := New()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.CreateDocument(ctx, "groups/g1/answers/p1_0", store.Fields{"scoreAwarded": 500}) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestSetDocumentMergeAndReplace(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"a": 1, "b": 2}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"b": 3}, true))

	doc, err := s.GetDocument(ctx, "groups/g1")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Fields.Int("a"))
	assert.Equal(t, 3, doc.Fields.Int("b"))

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"c": 4}, false))
	doc, err = s.GetDocument(ctx, "groups/g1")
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Fields.Int("a"))
	assert.Equal(t, 4, doc.Fields.Int("c"))
}

func TestIncrementFieldAccumulates(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "groups/g1/players/p1", store.Fields{"totalScore": 0}, false))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementField(ctx, "groups/g1/players/p1", "totalScore", 10)
		}()
	}
	wg.Wait()

	doc, err := s.GetDocument(ctx, "groups/g1/players/p1")
	require.NoError(t, err)
	assert.Equal(t, 500, doc.Fields.Int("totalScore"))
}

func TestQueryEquals(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "groups/g1/questions/0", store.Fields{"index": 0}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g1/questions/1", store.Fields{"index": 1}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g2/questions/0", store.Fields{"index": 1}, false))

	docs, err := s.QueryEquals(ctx, "groups/g1/questions", "index", 1, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
}

func TestListDocumentsDirectChildrenOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"status": "open"}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g1/players/p1", store.Fields{"name": "Ana"}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g2", store.Fields{"status": "draft"}, false))

	docs, err := s.ListDocuments(ctx, "groups")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDeleteTreeRemovesSubcollections(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g1/players/p1", store.Fields{}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g2", store.Fields{}, false))

	require.NoError(t, s.DeleteTree(ctx, "groups/g1"))

	_, err := s.GetDocument(ctx, "groups/g1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetDocument(ctx, "groups/g1/players/p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetDocument(ctx, "groups/g2")
	assert.NoError(t, err)
}

func TestSubscribeDocumentAndCollection(t *testing.T) {
	s := New()
	ctx := context.Background()

	var mu sync.Mutex
	var docEvents, collEvents []string

	unsubDoc, err := s.Subscribe(ctx, "groups/g1", func(doc store.Document) {
		mu.Lock()
		docEvents = append(docEvents, doc.Path)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubDoc()

	unsubColl, err := s.Subscribe(ctx, "groups/g1/players", func(doc store.Document) {
		mu.Lock()
		collEvents = append(collEvents, doc.Path)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubColl()

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"status": "open"}, false))
	require.NoError(t, s.SetDocument(ctx, "groups/g1/players/p1", store.Fields{"name": "Ana"}, false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"groups/g1"}, docEvents)
	assert.Equal(t, []string{"groups/g1/players/p1"}, collEvents)
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	events := 0
	unsub, err := s.Subscribe(ctx, "groups/g1", func(store.Document) { events++ })
	require.NoError(t, err)

	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"a": 1}, false))
	unsub()
	unsub()
	require.NoError(t, s.SetDocument(ctx, "groups/g1", store.Fields{"a": 2}, false))

	assert.Equal(t, 1, events)
}

func TestServerInstantUsesInjectedClock(t *testing.T) {
	s := New()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	assert.Equal(t, fixed, s.ServerInstant())
}

func TestInvalidPathsRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetDocument(ctx, "groups")
	assert.ErrorIs(t, err, store.ErrInvalidPath)
	err = s.SetDocument(ctx, "groups", store.Fields{}, false)
	assert.ErrorIs(t, err, store.ErrInvalidPath)
	_, err = s.ListDocuments(ctx, "groups/g1")
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}
