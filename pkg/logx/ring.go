package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Ring is a bounded, append-only diagnostic buffer.
//
// The sync loop writes to it through the logging fanout while the status
// surface reads snapshots from another goroutine, so every access goes through
// a single exclusive lock. The underlying slice is never handed out.
type Ring struct {
	mu      sync.Mutex
	entries []string
	head    int
	full    bool
	cap     int
}

// DefaultRingSize bounds the diagnostic buffer. Oldest entries are evicted first.
const DefaultRingSize = 200

// NewRing returns a ring holding at most capacity entries.
// capacity <= 0 falls back to DefaultRingSize.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Ring{entries: make([]string, capacity), cap: capacity}
}

// Append adds one entry, evicting the oldest when the ring is full.
func (r *Ring) Append(entry string) {
	r.mu.Lock()
	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.cap
	if r.head == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot returns the buffered entries, oldest first.
// The returned slice is a copy and safe to retain.
func (r *Ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.head)
		copy(out, r.entries[:r.head])
		return out
	}
	out := make([]string, 0, r.cap)
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

// Len reports how many entries are currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return r.cap
	}
	return r.head
}

// ---- Ring writer (zerolog sink) ----

type ringWriter struct{ ring *Ring }

func (w *ringWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *ringWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if w.ring == nil {
		return len(p), nil
	}
	if s := formatRingJSON(p); s != "" {
		w.ring.Append(s)
	}
	return len(p), nil
}

// formatRingJSON flattens a zerolog JSON line into a compact single-line entry.
func formatRingJSON(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		// Not JSON; keep the raw line, trimmed and capped.
		return truncate(strings.TrimSpace(string(p)), 500)
	}

	ts, _ := m["time"].(string)
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	if msg == "" {
		msg, _ = m["msg"].(string)
	}

	var b strings.Builder
	if ts != "" {
		b.WriteString("[")
		b.WriteString(ts)
		b.WriteString("] ")
	}
	if lvl != "" {
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString(" ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", "msg", "caller":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 200))
	}

	return truncate(b.String(), 500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
