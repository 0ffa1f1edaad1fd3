// Package store defines the keyed, subscribable record store that rooms are
// coordinated through, and an in-memory implementation of it.
//
// Records form a JSON tree addressed by slash-separated paths
// ("rooms/abc/players/p1"). Writing nil removes a key, and empty objects and
// arrays are pruned, so a cleared array reads back as absent. Subscribers
// receive full snapshots of the subscribed path; delivery is
// at-least-the-latest: a slow subscriber may skip intermediate states but
// always converges on the newest one.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPath is returned for malformed paths or writes through a
	// non-object value.
	ErrInvalidPath = errors.New("invalid path")

	// ErrSchemaViolation is returned when a write would leave a validated
	// record in an invalid shape. The write is not applied.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Store is the record store contract shared by the in-memory store and the
// remote websocket client.
type Store interface {
	// Push creates a child of parent under a fresh, time-ordered unique key.
	Push(ctx context.Context, parent string, value any) (string, error)
	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the object at path. Field names may be
	// nested paths; a nil value removes the field.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Get reads the value at path.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Subscribe calls fn with the current value at path and again after
	// every change at, above or below it, until cancel is called or ctx is
	// done.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (cancel func(), err error)
}

// Snapshot is an immutable view of the value at a path.
type Snapshot struct {
	Path   string          `json:"path"`
	Exists bool            `json:"exists"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Key returns the last segment of the snapshot path.
func (s Snapshot) Key() string {
	if i := strings.LastIndexByte(s.Path, '/'); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// Decode unmarshals the snapshot value into v. A missing value decodes as
// JSON null, leaving v untouched.
func (s Snapshot) Decode(v any) error {
	if !s.Exists || len(s.Value) == 0 {
		return nil
	}
	return json.Unmarshal(s.Value, v)
}

type serverValue struct {
	SV string `json:".sv"`
}

// ServerTimestamp is replaced by the store's clock, in milliseconds since
// the Unix epoch, when it is written.
var ServerTimestamp any = serverValue{SV: "timestamp"}

// Join builds a path from segments.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// SplitPath validates path and returns its segments. The empty path is the
// root.
func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" || strings.ContainsAny(seg, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// normalize converts an arbitrary Go value into the store's JSON tree form:
// map[string]any, []any, string, bool, json.Number or nil.
func normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}
