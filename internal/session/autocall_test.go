package session

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/room"
)

func TestAutoCallUsesClock(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	rooms := newRooms(t)

	cfg := singleCard()
	cfg.AutoCallInterval = 5 * time.Second
	host := newSession(t, rooms, Identity{ID: "host-1", Name: "Ann"}, 20, mClock, cfg)
	roomID, err := host.CreateRoom(ctx, bingo.Classic)
	require.NoError(t, err)
	eventually(t, host, func(v View) bool { return v.Shared != "" }, "first snapshot")

	require.NoError(t, host.StartAutoCall())
	require.NoError(t, host.StartAutoCall(), "starting twice is a no-op")
	assert.True(t, host.AutoCalling())

	for i := 1; i <= 3; i++ {
		mClock.Advance(5 * time.Second).MustWait(ctx)
		r, err := rooms.Get(ctx, roomID)
		require.NoError(t, err)
		require.Len(t, r.CalledNumbers, i, "one call per tick")
		assert.Equal(t, room.StatePlaying, r.GameState)
	}

	host.StopAutoCall()
	host.StopAutoCall()
	assert.False(t, host.AutoCalling())

	mClock.Advance(5 * time.Second).MustWait(ctx)
	r, err := rooms.Get(ctx, roomID)
	require.NoError(t, err)
	assert.Len(t, r.CalledNumbers, 3, "no calls after stop")
}

func TestAutoCallStopsWhenGameEnds(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	rooms := newRooms(t)

	host := newSession(t, rooms, Identity{ID: "host-1", Name: "Ann"}, 21, mClock, singleCard())
	guest := newSession(t, rooms, Identity{ID: "guest-1", Name: "Bob"}, 22, nil, singleCard())

	roomID, err := host.CreateRoom(ctx, bingo.Classic)
	require.NoError(t, err)
	require.NoError(t, guest.JoinRoom(ctx, roomID))

	require.NoError(t, host.StartAutoCall())

	// The guest's claim ends the game without the host doing anything.
	v := eventually(t, guest, func(v View) bool { return v.State == StatePlaying }, "guest playing")
	row := []int{0, 1, 2, 3, 4}
	calls := callUntilCalled(t, ctx, host, nonFreeValues(v.Card, row...))
	eventually(t, guest, func(v View) bool { return len(v.Called) == calls }, "guest sees calls")
	for _, i := range row {
		require.NoError(t, guest.ToggleMark(i))
	}
	_, err = guest.ClaimWin(ctx)
	require.NoError(t, err)

	eventually(t, host, func(v View) bool { return v.State == StateEnded }, "host sees end")
	assert.False(t, host.AutoCalling())
	assert.ErrorIs(t, host.StartAutoCall(), ErrGameEnded)

	r, err := rooms.Get(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", r.WinnerName())
}

func TestAutoCallStopsWhenExhausted(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	rooms := newRooms(t)

	host := newSession(t, rooms, Identity{ID: "host-1", Name: "Ann"}, 23, mClock, singleCard())
	_, err := host.CreateRoom(ctx, bingo.Blackout)
	require.NoError(t, err)

	for i := 0; i < bingo.MaxNumber-1; i++ {
		_, err := host.CallNext(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, host.StartAutoCall())
	mClock.Advance(5 * time.Second).MustWait(ctx)
	assert.True(t, host.AutoCalling(), "last number still available")

	mClock.Advance(5 * time.Second).MustWait(ctx)
	assert.False(t, host.AutoCalling(), "ticker stops once every number is called")
}

func TestAutoCallStopsOnRestartAndClose(t *testing.T) {
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	rooms := newRooms(t)

	host := newSession(t, rooms, Identity{ID: "host-1", Name: "Ann"}, 24, mClock, singleCard())
	_, err := host.CreateRoom(ctx, bingo.Classic)
	require.NoError(t, err)
	v := eventually(t, host, func(v View) bool { return v.Shared != "" }, "first snapshot")

	row := []int{0, 1, 2, 3, 4}
	calls := callUntilCalled(t, ctx, host, nonFreeValues(v.Card, row...))
	eventually(t, host, func(v View) bool { return len(v.Called) == calls }, "calls observed")
	for _, i := range row {
		require.NoError(t, host.ToggleMark(i))
	}
	_, err = host.ClaimWin(ctx)
	require.NoError(t, err)
	eventually(t, host, func(v View) bool { return v.State == StateEnded }, "ended")

	require.NoError(t, host.Restart(ctx))
	eventually(t, host, func(v View) bool { return v.State == StatePlaying }, "restarted")

	require.NoError(t, host.StartAutoCall())
	assert.True(t, host.AutoCalling())
	require.NoError(t, host.Close())
	assert.False(t, host.AutoCalling())
}
