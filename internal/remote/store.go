// Package remote talks to the remote JSON store that holds settings and the
// timer/event snapshots. Reads and writes are path-keyed, last writer wins.
//
// "Not found" is a normal state (a file the settings form has not written
// yet), reported as ErrNotFound and distinct from transport errors.
package remote

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "spawnbot/pkg/logx"
)

// ErrNotFound marks a path that does not exist in the store.
var ErrNotFound = errors.New("remote: not found")

// Store is the minimal remote access API used by the sync loop.
type Store interface {
	// Read returns the raw document at path, or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Write creates or replaces the document at path.
	Write(ctx context.Context, path string, data []byte, message string) error
}

// Config selects and configures the store driver.
//
// Driver values:
//   - "github" (default): repository contents API, one file per path
type Config struct {
	Driver string

	Token  string
	Owner  string
	Repo   string
	Branch string // default "main"

	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL string
	// Timeout bounds each call; 0 means a 10s default.
	Timeout time.Duration
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "github":
		return newGitHub(cfg, log)
	default:
		return nil, errors.New("unknown remote driver: " + driver)
	}
}
