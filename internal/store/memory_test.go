package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func decodeMap(t *testing.T, snap Snapshot) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, snap.Decode(&out))
	return out
}

// recorder collects snapshots delivered to a subscription.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestSetGetUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	require.NoError(t, m.Set(ctx, "rooms/r1", map[string]any{
		"host":      "p1",
		"gameState": "PLAYING",
		"players":   map[string]any{"p1": map[string]any{"name": "Ann"}},
	}))

	require.NoError(t, m.Update(ctx, "rooms/r1", map[string]any{
		"gameState":       "ENDED",
		"winner":          "Ann: BINGO!",
		"players/p2/name": "Bob",
	}))

	snap, err := m.Get(ctx, "rooms/r1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "r1", snap.Key())

	got := decodeMap(t, snap)
	assert.Equal(t, "p1", got["host"])
	assert.Equal(t, "ENDED", got["gameState"])
	assert.Equal(t, "Ann: BINGO!", got["winner"])
	players := got["players"].(map[string]any)
	assert.Len(t, players, 2)
	assert.Equal(t, "Bob", players["p2"].(map[string]any)["name"])
}

func TestNilRemovesAndEmptyIsPruned(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	require.NoError(t, m.Set(ctx, "rooms/r1", map[string]any{
		"calledNumbers": []int{5, 17},
		"winner":        "Ann: BINGO!",
		"host":          "p1",
	}))
	require.NoError(t, m.Update(ctx, "rooms/r1", map[string]any{
		"calledNumbers": []int{},
		"winner":        nil,
	}))

	got := decodeMap(t, mustGet(t, m, "rooms/r1"))
	assert.NotContains(t, got, "calledNumbers")
	assert.NotContains(t, got, "winner")
	assert.Equal(t, "p1", got["host"])

	// Removing the last field removes the record and its empty parent.
	require.NoError(t, m.Set(ctx, "rooms/r1/host", nil))
	snap := mustGet(t, m, "rooms/r1")
	assert.False(t, snap.Exists)
	assert.False(t, mustGet(t, m, "rooms").Exists)
}

func TestArrayElementsAreAddressable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	require.NoError(t, m.Set(ctx, "rooms/r1/calledNumbers", []int{5, 17, 42}))
	snap := mustGet(t, m, "rooms/r1/calledNumbers/1")
	require.True(t, snap.Exists)
	assert.JSONEq(t, "17", string(snap.Value))

	assert.False(t, mustGet(t, m, "rooms/r1/calledNumbers/9").Exists)
}

func TestInvalidPaths(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	for _, path := range []string{"rooms/a.b", "rooms//x", "rooms/$x", "rooms/[0]", "a#b"} {
		err := m.Set(ctx, path, "v")
		assert.ErrorIs(t, err, ErrInvalidPath, path)
	}
	assert.ErrorIs(t, m.Set(ctx, "", "v"), ErrInvalidPath)
	assert.ErrorIs(t, m.Update(ctx, "rooms/r1", map[string]any{"": 1}), ErrInvalidPath)
}

func TestPushKeysAreOrdered(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewMemory(testLogger(), WithClock(mClock))
	defer m.Close()

	var keys []string
	for i := 0; i < 20; i++ {
		key, err := m.Push(ctx, "rooms/r1/messages", map[string]any{"text": "hi", "n": i})
		require.NoError(t, err)
		keys = append(keys, key)
		if i%3 == 0 {
			mClock.Advance(time.Millisecond)
		}
	}
	assert.True(t, sort.StringsAreSorted(keys))

	msgs := decodeMap(t, mustGet(t, m, "rooms/r1/messages"))
	assert.Len(t, msgs, 20)
}

func TestServerTimestamp(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mClock.Set(now)
	m := NewMemory(testLogger(), WithClock(mClock))
	defer m.Close()

	key, err := m.Push(ctx, "rooms/r1/messages", map[string]any{
		"text":      "hello",
		"timestamp": ServerTimestamp,
	})
	require.NoError(t, err)

	var msg struct {
		Text      string `json:"text"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, mustGet(t, m, "rooms/r1/messages/"+key).Decode(&msg))
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, now.UnixMilli(), msg.Timestamp)
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	rec := &recorder{}
	cancel, err := m.Subscribe(ctx, "rooms/r1", rec.add)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, time.Second, 5*time.Millisecond)
	first, _ := rec.last()
	assert.False(t, first.Exists)

	require.NoError(t, m.Set(ctx, "rooms/r1", map[string]any{"host": "p1"}))
	require.NoError(t, m.Set(ctx, "rooms/r1/players/p1/name", "Ann"))

	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		if !ok || !snap.Exists {
			return false
		}
		var room map[string]any
		_ = json.Unmarshal(snap.Value, &room)
		players, _ := room["players"].(map[string]any)
		return players["p1"] != nil
	}, time.Second, 5*time.Millisecond)

	// Unrelated paths do not wake the subscriber.
	before := rec.count()
	require.NoError(t, m.Set(ctx, "rooms/r2/host", "p9"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, rec.count())
}

func TestSubscribeConvergesOnLatest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []int
	cancel, err := m.Subscribe(ctx, "counter", func(s Snapshot) {
		<-release
		var n int
		_ = s.Decode(&n)
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	for i := 1; i <= 50; i++ {
		require.NoError(t, m.Set(ctx, "counter", i))
	}
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == 50
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, len(seen), 51, "intermediate states should be coalesced")
	assert.True(t, sort.IntsAreSorted(seen))
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())
	defer m.Close()

	rec := &recorder{}
	cancel, err := m.Subscribe(ctx, "rooms/r1", rec.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	cancel()

	require.NoError(t, m.Set(ctx, "rooms/r1/host", "p1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestContextCancelStopsDelivery(t *testing.T) {
	m := NewMemory(testLogger())
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	_, err := m.Subscribe(ctx, "rooms/r1", rec.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.subs) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Set(context.Background(), "rooms/r1/host", "p1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestValidatorRejectsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	errNoHost := errors.New("host is required")
	m := NewMemory(testLogger(), WithValidator("rooms", func(key string, record any) error {
		if record == nil {
			return nil
		}
		r, _ := record.(map[string]any)
		if _, ok := r["host"].(string); !ok {
			return errNoHost
		}
		return nil
	}))
	defer m.Close()

	require.NoError(t, m.Set(ctx, "rooms/r1", map[string]any{"host": "p1", "gameState": "PLAYING"}))

	err := m.Update(ctx, "rooms/r1", map[string]any{"host": nil, "gameState": "ENDED"})
	require.ErrorIs(t, err, ErrSchemaViolation)

	got := decodeMap(t, mustGet(t, m, "rooms/r1"))
	assert.Equal(t, "p1", got["host"])
	assert.Equal(t, "PLAYING", got["gameState"])

	// A whole-collection write is checked record by record.
	err = m.Set(ctx, "rooms", map[string]any{"r2": map[string]any{"gameState": "PLAYING"}})
	require.ErrorIs(t, err, ErrSchemaViolation)
	assert.True(t, mustGet(t, m, "rooms/r1").Exists)
	assert.False(t, mustGet(t, m, "rooms/r2").Exists)

	// Removing a record is allowed by this validator.
	require.NoError(t, m.Set(ctx, "rooms/r1", nil))
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(testLogger())

	rec := &recorder{}
	_, err := m.Subscribe(ctx, "x", rec.add)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.Set(ctx, "x", 1), ErrClosed)
	_, err = m.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Subscribe(ctx, "x", rec.add)
	assert.ErrorIs(t, err, ErrClosed)
}

func mustGet(t *testing.T, m *Memory, path string) Snapshot {
	t.Helper()
	snap, err := m.Get(context.Background(), path)
	require.NoError(t, err)
	return snap
}
