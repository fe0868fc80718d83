package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "spawnbot/pkg/logx"
)

// Store is the minimal persistence API used by the sync loop.
//
// Sent markers are the (timer, instance, tier) keys of already-dispatched
// notifications, persisted so a restart inside a spawn window does not
// re-alert. The value is the spawn instant; pruning cuts on it.
type Store interface {
	AppendAlert(ctx context.Context, e AlertEntry) error
	PutSent(ctx context.Context, key string, spawnAt time.Time) error
	LoadSent(ctx context.Context) (map[string]time.Time, error)
	PruneSent(ctx context.Context, cutoff time.Time) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
