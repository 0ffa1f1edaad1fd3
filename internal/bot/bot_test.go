package bot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/randutil"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/session"
	"github.com/lox/bingoroom/internal/store"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func newRooms(t *testing.T) *room.Sync {
	t.Helper()
	schema, err := room.CompileSchema()
	require.NoError(t, err)
	mem := store.NewMemory(testLogger(), store.WithValidator(room.Collection, schema.ValidateRecord))
	t.Cleanup(func() { _ = mem.Close() })
	return room.NewSync(mem, testLogger())
}

func newHost(t *testing.T, rooms *room.Sync) (*session.Session, string) {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.CardOptions = 1
	host := session.New(rooms, session.Identity{ID: "host", Name: "Host"}, randutil.New(1), nil, testLogger(), cfg)
	t.Cleanup(func() { _ = host.Close() })

	roomID, err := host.CreateRoom(t.Context(), bingo.Classic)
	require.NoError(t, err)
	return host, roomID
}

// callAll calls until the game ends or the numbers run out.
func callAll(t *testing.T, ctx context.Context, host *session.Session) {
	t.Helper()
	for {
		_, err := host.CallNext(ctx)
		if errors.Is(err, session.ErrGameEnded) || errors.Is(err, bingo.ErrCallExhausted) {
			return
		}
		require.NoError(t, err)
	}
}

func TestGeneratedName(t *testing.T) {
	t.Parallel()
	rooms := newRooms(t)

	b := New(rooms, randutil.New(1), WithPrefix("caller"))
	assert.Regexp(t, `^caller-[0-9a-f]{4}$`, b.Name())

	named := New(rooms, randutil.New(1), WithName("Robo"))
	assert.Equal(t, "Robo", named.Name())
}

func TestStepChoosesCardAndMarksCalledNumbers(t *testing.T) {
	t.Parallel()
	rooms := newRooms(t)
	host, roomID := newHost(t, rooms)

	b := New(rooms, randutil.New(2))
	require.NoError(t, b.Join(t.Context(), roomID))
	require.Equal(t, session.StateSelectingCard, b.View().State)

	require.NoError(t, b.Step(t.Context()))
	require.Equal(t, session.StatePlaying, b.View().State)

	// Call a number that is on the bot's card.
	card := b.View().Card
	target := card[0].Value
	for calls := 1; !b.View().IsCalled(target); calls++ {
		_, err := host.CallNext(t.Context())
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return len(b.View().Called) == calls
		}, 2*time.Second, 5*time.Millisecond)
	}

	require.NoError(t, b.Step(t.Context()))
	v := b.View()
	assert.True(t, v.Card[0].Marked)
	for _, cell := range v.Card {
		if !cell.Free {
			assert.Equal(t, v.IsCalled(cell.Value), cell.Marked, "cell %d", cell.Value)
		}
	}
}

func TestBotWinsAndPlaysOnAfterRestart(t *testing.T) {
	t.Parallel()
	rooms := newRooms(t)
	host, roomID := newHost(t, rooms)

	b := New(rooms, randutil.New(3), WithName("Robo"))
	require.NoError(t, b.Join(t.Context(), roomID))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return b.View().State == session.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	callAll(t, t.Context(), host)
	require.Eventually(t, func() bool {
		v := host.View()
		return v.Shared == room.StateEnded && v.Winner == "Robo"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, host.Restart(t.Context()))
	require.Eventually(t, func() bool {
		v, h := b.View(), host.View()
		return v.State == session.StatePlaying && len(v.Called) == 0 && h.Shared == room.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	callAll(t, t.Context(), host)
	require.Eventually(t, func() bool {
		v := host.View()
		return v.Shared == room.StateEnded && v.Winner == "Robo"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
}
