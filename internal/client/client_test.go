package client

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/randutil"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/server"
	"github.com/lox/bingoroom/internal/session"
	"github.com/lox/bingoroom/internal/store"
)

const waitFor = 5 * time.Second

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

// startServer runs a record server over a memory store that validates rooms.
func startServer(t *testing.T) (string, *store.Memory) {
	t.Helper()
	schema, err := room.CompileSchema()
	require.NoError(t, err)
	mem := store.NewMemory(testLogger(), store.WithValidator(room.Collection, schema.ValidateRecord))
	srv := server.NewServer("", mem, testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Stop()
		ts.Close()
		_ = mem.Close()
	})
	return ts.URL, mem
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(url, testLogger(), WithRequestTimeout(waitFor))
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// latest keeps the newest snapshot delivered to a subscription.
type latest struct {
	mu   sync.Mutex
	snap store.Snapshot
	n    int
}

func (l *latest) set(s store.Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.n++
	l.mu.Unlock()
}

func (l *latest) get() (store.Snapshot, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap, l.n
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "https://bingo.example.com/", want: "wss://bingo.example.com/ws"},
		{in: "localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "ws://127.0.0.1:9000/ws?x=1", want: "ws://127.0.0.1:9000/ws"},
		{in: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebSocketURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestsBeforeConnect(t *testing.T) {
	c := NewClient("http://localhost:1", testLogger())
	_, err := c.Get(context.Background(), "rooms")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.IsConnected())
}

func TestStoreOperations(t *testing.T) {
	ctx := context.Background()
	url, mem := startServer(t)
	c := connect(t, url)
	assert.True(t, c.IsConnected())

	key, err := c.Push(ctx, "scratch", map[string]any{"n": 1})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	require.NoError(t, c.Update(ctx, store.Join("scratch", key), map[string]any{
		"n":  nil,
		"at": store.ServerTimestamp,
	}))

	snap, err := c.Get(ctx, store.Join("scratch", key))
	require.NoError(t, err)
	require.True(t, snap.Exists)
	var rec map[string]any
	require.NoError(t, snap.Decode(&rec))
	assert.NotContains(t, rec, "n")
	assert.Contains(t, rec, "at")

	require.NoError(t, c.Set(ctx, "scratch", nil))
	direct, err := mem.Get(ctx, "scratch")
	require.NoError(t, err)
	assert.False(t, direct.Exists)
}

func TestRemoteErrorsMatchStoreErrors(t *testing.T) {
	ctx := context.Background()
	url, _ := startServer(t)
	c := connect(t, url)

	err := c.Set(ctx, "bad.path", 1)
	require.ErrorIs(t, err, store.ErrInvalidPath)

	err = c.Set(ctx, "rooms/r1", map[string]any{"hostId": "h"})
	require.ErrorIs(t, err, store.ErrSchemaViolation)

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, server.CodeSchemaViolation, remote.Code)
}

func TestSubscribeAndCancel(t *testing.T) {
	ctx := context.Background()
	url, mem := startServer(t)
	c := connect(t, url)

	var l latest
	cancel, err := c.Subscribe(ctx, "scratch/a", l.set)
	require.NoError(t, err)

	require.Eventually(t, func() bool { _, n := l.get(); return n >= 1 }, waitFor, 5*time.Millisecond)
	snap, _ := l.get()
	assert.False(t, snap.Exists)

	require.NoError(t, mem.Set(ctx, "scratch/a", "hello"))
	require.Eventually(t, func() bool { s, _ := l.get(); return s.Exists }, waitFor, 5*time.Millisecond)
	snap, _ = l.get()
	assert.JSONEq(t, `"hello"`, string(snap.Value))

	cancel()
	cancel()
	_, before := l.get()
	require.NoError(t, mem.Set(ctx, "scratch/a", "again"))

	// A round trip through the same connection orders after the unsubscribe.
	_, err = c.Get(ctx, "scratch/a")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, after := l.get()
	assert.Equal(t, before, after, "no deliveries after cancel")
}

func TestCloseFailsRequests(t *testing.T) {
	url, _ := startServer(t)
	c := connect(t, url)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Push(context.Background(), "scratch", 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRoomSyncOverWebSocket(t *testing.T) {
	ctx := context.Background()
	url, _ := startServer(t)

	hostRooms := room.NewSync(connect(t, url), testLogger())
	guestRooms := room.NewSync(connect(t, url), testLogger())

	roomID, err := hostRooms.CreateRoom(ctx, "host-1", "Ann", bingo.Blackout)
	require.NoError(t, err)

	require.NoError(t, guestRooms.JoinRoom(ctx, roomID, "guest-1", "Bob"))
	_, err = guestRooms.Get(ctx, "missing")
	require.ErrorIs(t, err, room.ErrRoomNotFound)

	err = guestRooms.UpdateRoom(ctx, roomID, room.NewPatch().GameState("PAUSED"))
	require.ErrorIs(t, err, room.ErrSyncFailure)
	require.ErrorIs(t, err, store.ErrSchemaViolation)

	require.NoError(t, guestRooms.SendChatMessage(ctx, roomID, "Bob", "hi"))

	r, err := hostRooms.Get(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, roomID, r.ID)
	assert.Equal(t, bingo.Blackout, r.GameMode)
	assert.Equal(t, []string{"host-1", "guest-1"}, r.PlayerIDs())
	msgs := r.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Positive(t, msgs[0].Timestamp)
}

func TestSessionsPlayOverWebSocket(t *testing.T) {
	ctx := context.Background()
	url, _ := startServer(t)

	cfg := session.DefaultConfig()
	cfg.CardOptions = 1
	newSession := func(id session.Identity, seed int64) *session.Session {
		rooms := room.NewSync(connect(t, url), testLogger())
		s := session.New(rooms, id, randutil.New(seed), nil, testLogger(), cfg)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	host := newSession(session.Identity{ID: "host-1", Name: "Ann"}, 7)
	guest := newSession(session.Identity{ID: "guest-1", Name: "Bob"}, 8)

	roomID, err := host.CreateRoom(ctx, bingo.Classic)
	require.NoError(t, err)
	require.NoError(t, guest.JoinRoom(ctx, roomID))

	var v session.View
	require.Eventually(t, func() bool {
		v = guest.View()
		return len(v.Players) == 2 && v.State == session.StatePlaying
	}, waitFor, 5*time.Millisecond)

	// Call until the guest's top row is covered.
	need := map[int]bool{}
	for i := 0; i < bingo.Size; i++ {
		if !v.Card[i].Free {
			need[v.Card[i].Value] = true
		}
	}
	calls := 0
	for len(need) > 0 {
		n, err := host.CallNext(ctx)
		require.NoError(t, err)
		delete(need, n)
		calls++
	}
	require.Eventually(t, func() bool { return len(guest.View().Called) == calls }, waitFor, 5*time.Millisecond)

	for i := 0; i < bingo.Size; i++ {
		require.NoError(t, guest.ToggleMark(i))
	}
	res, err := guest.ClaimWin(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	require.Eventually(t, func() bool {
		hv := host.View()
		return hv.State == session.StateEnded && hv.Winner == "Bob"
	}, waitFor, 5*time.Millisecond)
}
