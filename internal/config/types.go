package config

import "time"

// Config is the local bot configuration.
//
// It intentionally holds only what the process needs to boot: where the game
// profile lives, how to reach the remote store the first time, cadences, and
// ambient knobs (logging, storage, status). Everything operators change at
// runtime lives in the remote settings record instead (see internal/app).
type Config struct {
	// ProfilePath points at the local game profile JSON (timer catalog).
	ProfilePath string `json:"profile_path"`

	Sync    SyncConfig    `json:"sync"`
	Store   StoreConfig   `json:"store"`
	Logging LoggingConfig `json:"logging"`

	// Storage optionally persists the sent-notification record across restarts.
	Storage *StorageConfig `json:"storage,omitempty"`

	Status StatusConfig `json:"status,omitempty"`
}

// SyncConfig controls the two cadences of the sync loop.
//
// All durations are Go duration strings (e.g. "60s", "5m").
type SyncConfig struct {
	// ResyncInterval is the long cadence: full remote re-download.
	ResyncInterval string `json:"resync_interval,omitempty"` // default "300s"
	// EvaluateInterval is the short cadence: predict + notify.
	EvaluateInterval string `json:"evaluate_interval,omitempty"` // default "60s"
}

// StoreConfig bootstraps the remote JSON store connection.
//
// The remote settings record may rotate the token and override file names;
// remote values win once settings have loaded (last writer wins).
type StoreConfig struct {
	Token  string `json:"token"`
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"` // default "main"

	// SettingsFile is the path of the settings record inside the store.
	SettingsFile string `json:"settings_file,omitempty"` // default "settings.json"
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./spawnbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StatusConfig controls the optional status HTTP server.
//
// Prefer binding to localhost; the endpoint exposes the agenda and the
// diagnostic log, not credentials, but it has no auth of its own.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8390"
}

// Cadences resolves the sync intervals, applying defaults and rejecting
// malformed durations.
func (c *Config) Cadences() (resync, evaluate time.Duration, err error) {
	resync, err = ParseDurationOrDefault("sync.resync_interval", c.Sync.ResyncInterval, 300*time.Second)
	if err != nil {
		return 0, 0, err
	}
	evaluate, err = ParseDurationOrDefault("sync.evaluate_interval", c.Sync.EvaluateInterval, 60*time.Second)
	if err != nil {
		return 0, 0, err
	}
	return resync, evaluate, nil
}
