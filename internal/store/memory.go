package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/bingoroom/internal/pushid"
)

// RecordValidator checks a whole record after a write. record is nil when
// the write removed it.
type RecordValidator func(key string, record any) error

// Option configures a Memory store.
type Option func(*Memory)

// WithClock sets the clock used for server timestamps and push keys.
func WithClock(clock quartz.Clock) Option {
	return func(m *Memory) { m.clock = clock }
}

// WithKeyGenerator overrides push key allocation.
func WithKeyGenerator(gen *pushid.Generator) Option {
	return func(m *Memory) { m.keys = gen }
}

// WithValidator validates every record directly below collection after each
// write that touches it.
func WithValidator(collection string, fn RecordValidator) Option {
	return func(m *Memory) { m.validators[collection] = fn }
}

// Memory is an in-process Store. All writes are serialised; subscribers are
// notified in commit order through per-subscription mailboxes that keep only
// the newest snapshot.
type Memory struct {
	mu         sync.Mutex
	root       map[string]any
	subs       map[uint64]*subscription
	nextSub    uint64
	closed     bool
	clock      quartz.Clock
	keys       *pushid.Generator
	validators map[string]RecordValidator
	logger     *log.Logger
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory(logger *log.Logger, opts ...Option) *Memory {
	m := &Memory{
		root:       map[string]any{},
		subs:       map[uint64]*subscription{},
		validators: map[string]RecordValidator{},
		logger:     logger.WithPrefix("store"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = quartz.NewReal()
	}
	if m.keys == nil {
		m.keys = pushid.NewGenerator(m.clock, nil)
	}
	return m
}

type subscription struct {
	id   uint64
	path []string
	box  *Mailbox
}

type write struct {
	segs  []string
	value any
}

// Push implements Store.
func (m *Memory) Push(ctx context.Context, parent string, value any) (string, error) {
	segs, err := SplitPath(parent)
	if err != nil {
		return "", err
	}
	v, err := normalize(value)
	if err != nil {
		return "", err
	}
	key := m.keys.Next()
	if err := m.apply(ctx, []write{{segs: append(segs, key), value: v}}); err != nil {
		return "", err
	}
	return key, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, path string, value any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("%w: cannot set the root", ErrInvalidPath)
	}
	v, err := normalize(value)
	if err != nil {
		return err
	}
	return m.apply(ctx, []write{{segs: segs, value: v}})
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	base, err := SplitPath(path)
	if err != nil {
		return err
	}
	writes := make([]write, 0, len(fields))
	for field, value := range fields {
		rel, err := SplitPath(field)
		if err != nil {
			return err
		}
		if len(rel) == 0 {
			return fmt.Errorf("%w: empty field name", ErrInvalidPath)
		}
		v, err := normalize(value)
		if err != nil {
			return err
		}
		segs := append(append([]string{}, base...), rel...)
		writes = append(writes, write{segs: segs, value: v})
	}
	return m.apply(ctx, writes)
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return m.snapshotLocked(segs)
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	snap, err := m.snapshotLocked(segs)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.nextSub++
	sub := &subscription{id: m.nextSub, path: segs, box: NewMailbox(fn)}
	m.subs[sub.id] = sub
	sub.box.Offer(snap)
	m.mu.Unlock()

	go sub.box.Run(ctx)

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, sub.id)
		m.mu.Unlock()
		sub.box.Stop()
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.box.Done():
		}
	}()

	m.logger.Debug("Subscribed", "path", path, "id", sub.id)
	return cancel, nil
}

// Close stops all subscriptions. Further operations fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = map[uint64]*subscription{}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.box.Stop()
	}
	return nil
}

func (m *Memory) apply(ctx context.Context, writes []write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	nowMs := m.clock.Now().UnixMilli()
	for i := range writes {
		writes[i].value = prune(resolveServerValues(writes[i].value, nowMs))
	}

	// Remember validated records so a rejected write can be rolled back.
	saved := map[string][]string{}
	before := map[string]any{}
	for _, w := range writes {
		for _, rec := range m.affectedRecords(w) {
			k := Join(rec...)
			if _, ok := saved[k]; ok {
				continue
			}
			saved[k] = rec
			v, _ := getAt(m.root, rec)
			before[k] = clone(v)
		}
	}

	for _, w := range writes {
		setAt(m.root, w.segs, w.value)
	}

	for k, rec := range saved {
		v, _ := getAt(m.root, rec)
		if err := m.validators[rec[0]](rec[1], v); err != nil {
			for rk, rrec := range saved {
				setAt(m.root, rrec, before[rk])
			}
			m.logger.Warn("Rejected write", "record", k, "error", err)
			return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, k, err)
		}
	}

	m.notifyLocked(writes)
	return nil
}

// affectedRecords lists validated records (collection/key) that w can
// change.
func (m *Memory) affectedRecords(w write) [][]string {
	segs := w.segs
	if len(segs) == 0 || m.validators[segs[0]] == nil {
		return nil
	}
	if len(segs) >= 2 {
		return [][]string{{segs[0], segs[1]}}
	}
	var recs [][]string
	existing, _ := m.root[segs[0]].(map[string]any)
	for k := range existing {
		recs = append(recs, []string{segs[0], k})
	}
	incoming, _ := w.value.(map[string]any)
	for k := range incoming {
		if _, ok := existing[k]; !ok {
			recs = append(recs, []string{segs[0], k})
		}
	}
	return recs
}

func (m *Memory) notifyLocked(writes []write) {
	for _, sub := range m.subs {
		for _, w := range writes {
			if !related(sub.path, w.segs) {
				continue
			}
			snap, err := m.snapshotLocked(sub.path)
			if err != nil {
				m.logger.Error("Failed to build snapshot", "path", Join(sub.path...), "error", err)
				break
			}
			sub.box.Offer(snap)
			break
		}
	}
}

func (m *Memory) snapshotLocked(segs []string) (Snapshot, error) {
	v, ok := getAt(m.root, segs)
	if !ok {
		return Snapshot{Path: Join(segs...)}, nil
	}
	return encodeSnapshot(Join(segs...), v)
}
