package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"spawnbot/internal/config"
	logx "spawnbot/pkg/logx"
)

// StatusSnapshot is the JSON document the status endpoint serves.
type StatusSnapshot struct {
	GameName     string    `json:"game_name"`
	Now          time.Time `json:"now"`
	LastResync   time.Time `json:"last_resync,omitempty"`
	LastEvaluate time.Time `json:"last_evaluate,omitempty"`

	SettingsLoaded bool `json:"settings_loaded"`
	SentMarkers    int  `json:"sent_markers"`

	Confirmed   []StatusPrediction `json:"confirmed"`
	Unconfirmed []string           `json:"unconfirmed"`

	// Log is the diagnostic ring, oldest first.
	Log []string `json:"log"`
}

// StatusPrediction is one agenda line.
type StatusPrediction struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	SpawnAt time.Time `json:"spawn_at"`
	In      string    `json:"in"`
}

// statusServer manages lifecycle for the status HTTP listener.
type statusServer struct {
	mu   sync.Mutex
	log  logx.Logger
	srv  *http.Server
	ln   net.Listener
	addr string

	snapshot func() StatusSnapshot
}

func newStatusServer(log logx.Logger, snapshot func() StatusSnapshot) *statusServer {
	return &statusServer{log: log, snapshot: snapshot}
}

// Apply starts/stops the status server according to cfg.
func (s *statusServer) Apply(ctx context.Context, cfg config.StatusConfig) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8390"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == cfg.Addr {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg)
}

func (s *statusServer) startLocked(cfg config.StatusConfig) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		s.log.Warn("status listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return
	}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("status server enabled", logx.String("addr", s.addr))
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.snapshot()); err != nil {
		s.log.Warn("status encode failed", logx.Err(err))
	}
}

// Stop gracefully shuts down the status server.
func (s *statusServer) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *statusServer) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	addr := s.addr
	s.addr = ""

	shutdownCtx := ctx
	if shutdownCtx == nil {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("status shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("status server disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *statusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
