package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AlertEntry records one dispatched notification.
// Keep it compact and schema-stable.
type AlertEntry struct {
	At      time.Time
	TimerID string
	Tier    string
	SpawnAt time.Time
	Message string
	OK      int
	Fail    int
}
