package alert

import (
	"fmt"
	"time"

	"spawnbot/internal/spawn"
)

// InstanceKey identifies one (timer, spawn instance, tier) triple.
//
// Minute precision matches the prediction wire format, so re-merging an
// unchanged remote snapshot reproduces the identical key while any new
// observation yields a fresh one.
func InstanceKey(timerID string, spawnAt time.Time, tier string) string {
	return fmt.Sprintf("%s@%s#%s", timerID, spawnAt.Format(spawn.SpawnTimeLayout), tier)
}

// SentRecord tracks which notification triples have already been dispatched.
//
// It is owned by the sync loop and accessed from its single goroutine only
// (the diagnostic ring is the one shared structure in this process), so it
// carries no lock.
type SentRecord struct {
	entries map[string]time.Time // key -> spawn instant, for purge
}

func NewSentRecord() *SentRecord {
	return &SentRecord{entries: map[string]time.Time{}}
}

// Restore seeds the record, typically from the persistence layer at startup.
func (r *SentRecord) Restore(m map[string]time.Time) {
	for k, v := range m {
		r.entries[k] = v
	}
}

func (r *SentRecord) Seen(key string) bool {
	_, ok := r.entries[key]
	return ok
}

// Mark records a dispatched triple. Call only after confirmed delivery;
// unmarked alerts re-emit next cycle, which is the retry path.
func (r *SentRecord) Mark(key string, spawnAt time.Time) {
	r.entries[key] = spawnAt
}

// Purge drops entries whose spawn instant is more than grace in the past and
// returns how many were removed. Entries still inside the window stay: their
// instance may legitimately re-enter evaluation this cycle.
func (r *SentRecord) Purge(now time.Time, grace time.Duration) int {
	cutoff := now.Add(-grace)
	removed := 0
	for k, spawnAt := range r.entries {
		if spawnAt.Before(cutoff) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

func (r *SentRecord) Len() int { return len(r.entries) }

// Snapshot copies the record, for persistence.
func (r *SentRecord) Snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}
