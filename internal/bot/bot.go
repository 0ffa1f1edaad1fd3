// Package bot plays a bingo card without a human: it picks a card, marks
// every called number and shouts as soon as the card validates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/randutil"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/session"
)

// Option configures a Bot
type Option func(*options)

type options struct {
	logger        zerolog.Logger
	sessionLogger *log.Logger
	prefix        string
	name          string
}

// WithLogger sets the logger for bot decisions
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSessionLogger sets the logger handed to the underlying session
func WithSessionLogger(logger *log.Logger) Option {
	return func(o *options) { o.sessionLogger = logger }
}

// WithPrefix sets the prefix of generated names
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithName sets the display name instead of generating one
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Bot is an automated player in one room
type Bot struct {
	session *session.Session
	rng     *rand.Rand
	logger  zerolog.Logger

	wake chan struct{}
	wins chan string
}

// New creates a bot with a fresh identity. The session takes ownership of
// rng for dealing; card choice draws from a stream split off it first.
func New(rooms *room.Sync, rng *rand.Rand, opts ...Option) *Bot {
	o := options{
		logger:        zerolog.Nop(),
		sessionLogger: log.New(io.Discard),
		prefix:        "bot",
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	name := o.name
	if name == "" {
		name = fmt.Sprintf("%s-%s", o.prefix, id[:4])
	}

	b := &Bot{
		rng:    randutil.Split(rng),
		logger: o.logger.With().Str("bot", name).Logger(),
		wake:   make(chan struct{}, 1),
		wins:   make(chan string, 8),
	}

	cfg := session.DefaultConfig()
	cfg.OnChange = b.nudge
	cfg.OnWin = b.won
	b.session = session.New(rooms, session.Identity{ID: id, Name: name}, rng, nil, o.sessionLogger, cfg)
	return b
}

// Name returns the bot's display name
func (b *Bot) Name() string {
	return b.session.Identity().Name
}

// View returns the bot's current view of its room
func (b *Bot) View() session.View {
	return b.session.View()
}

// Join enters the room
func (b *Bot) Join(ctx context.Context, roomID string) error {
	if err := b.session.JoinRoom(ctx, roomID); err != nil {
		return err
	}
	b.logger.Info().Str("room", roomID).Msg("Joined room")
	b.nudge()
	return nil
}

// Run plays until ctx is cancelled, then leaves the room
func (b *Bot) Run(ctx context.Context) error {
	defer func() { _ = b.session.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case winner := <-b.wins:
			if winner == b.Name() {
				b.logger.Info().Msg("Won the game")
			} else {
				b.logger.Info().Str("winner", winner).Msg("Game over")
			}
		case <-b.wake:
			if err := b.Step(ctx); err != nil {
				b.logger.Warn().Err(err).Msg("Step failed")
			}
		}
	}
}

// Step reacts to the latest view once: choose a card when offered, mark
// called numbers, claim when the card validates.
func (b *Bot) Step(ctx context.Context) error {
	v := b.session.View()

	switch v.State {
	case session.StateSelectingCard:
		choice := b.rng.IntN(len(v.Options))
		if err := b.session.ChooseCard(choice); err != nil {
			return err
		}
		b.logger.Debug().Int("choice", choice).Msg("Chose card")
		v = b.session.View()
	case session.StatePlaying:
	default:
		return nil
	}

	for i, cell := range v.Card {
		if cell.Free || cell.Marked || !v.IsCalled(cell.Value) {
			continue
		}
		if err := b.session.ToggleMark(i); err != nil {
			if errors.Is(err, session.ErrGameEnded) {
				return nil
			}
			return err
		}
		b.logger.Debug().Str("number", bingo.Label(cell.Value)).Msg("Marked")
	}

	v = b.session.View()
	if v.ClaimPending || !bingo.Validate(v.Card, v.Called, v.Mode).Valid {
		return nil
	}

	res, err := b.session.ClaimWin(ctx)
	switch {
	case errors.Is(err, session.ErrGameEnded), errors.Is(err, session.ErrClaimPending):
		return nil
	case err != nil:
		return err
	}
	b.logger.Info().Ints("cells", res.Cells).Msg(v.Mode.Shout())
	return nil
}

func (b *Bot) nudge() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bot) won(winner string) {
	select {
	case b.wins <- winner:
	default:
	}
}
