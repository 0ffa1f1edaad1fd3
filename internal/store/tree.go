package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// getAt walks segs from node. Array elements are addressable by index.
func getAt(node any, segs []string) (any, bool) {
	cur := node
	for _, seg := range segs {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// setAt writes value at segs below root, creating intermediate objects and
// pruning objects left empty. Writing below an array or scalar replaces it
// with an object, matching how the realtime database treats the write.
func setAt(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	parent := root
	chain := make([]map[string]any, 0, len(segs))
	chain = append(chain, root)
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			if value == nil {
				return
			}
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
		chain = append(chain, parent)
	}

	last := segs[len(segs)-1]
	if value == nil {
		delete(parent, last)
	} else {
		parent[last] = value
	}

	// Prune empty objects bottom-up, never the root.
	for i := len(chain) - 1; i > 0; i-- {
		if len(chain[i]) > 0 {
			break
		}
		delete(chain[i-1], segs[i-1])
	}
}

// prune removes nil fields and empty objects or arrays. It returns nil when
// nothing is left.
func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if p := prune(child); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		out := t[:0]
		for _, child := range t {
			if p := prune(child); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

// resolveServerValues replaces {".sv":"timestamp"} placeholders.
func resolveServerValues(v any, nowMs int64) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if sv, ok := t[".sv"].(string); ok && sv == "timestamp" {
				return json.Number(strconv.FormatInt(nowMs, 10))
			}
		}
		for k, child := range t {
			t[k] = resolveServerValues(child, nowMs)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = resolveServerValues(child, nowMs)
		}
		return t
	default:
		return v
	}
}

// clone deep-copies a tree value.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	default:
		return v
	}
}

func encodeSnapshot(path string, v any) (Snapshot, error) {
	snap := Snapshot{Path: path}
	if v == nil {
		return snap, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return snap, fmt.Errorf("encode snapshot %q: %w", path, err)
	}
	snap.Exists = true
	snap.Value = data
	return snap, nil
}

// related reports whether a change at b is visible from a subscription at a.
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
