// Package app wires the sync loop: the long cadence re-downloads settings and
// snapshots from the remote store, the short cadence predicts spawns and
// dispatches due alerts. Both cadences share one logical timeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"spawnbot/internal/alert"
	"spawnbot/internal/catalog"
	"spawnbot/internal/config"
	"spawnbot/internal/delivery"
	"spawnbot/internal/remote"
	"spawnbot/internal/spawn"
	"spawnbot/internal/storage"
	logx "spawnbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	ring *logx.Ring

	profile *catalog.Profile
	clock   clockwork.Clock

	remote remote.Store
	store  storage.Store
	disp   *delivery.Dispatcher
	engine *alert.Engine
	sent   *alert.SentRecord
	grace  time.Duration

	cron   *cron.Cron
	status *statusServer

	// loopMu serializes resync and evaluate; cron runs each entry in its
	// own goroutine, and the loop state below assumes a single timeline.
	loopMu sync.Mutex

	// stateMu guards the snapshot the status server reads.
	stateMu      sync.RWMutex
	settings     *Settings
	observations map[string]spawn.Observation
	records      []spawn.LiveRecord
	events       map[string]string
	agenda       spawn.Agenda
	sentCount    int
	lastResync   time.Time
	lastEvaluate time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	ring := logx.NewRing(logx.DefaultRingSize)
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}, ring)
	log = log.With(logx.String("comp", "app"))

	// Remote bootstrap creds are the one thing the process cannot run
	// without: settings, timers and events all live behind them.
	if strings.TrimSpace(cfg.Store.Token) == "" ||
		strings.TrimSpace(cfg.Store.Owner) == "" ||
		strings.TrimSpace(cfg.Store.Repo) == "" {
		logSvc.Close()
		return nil, errors.New("store.token, store.owner and store.repo are required")
	}
	rs, err := remote.Open(remote.Config{
		Token:  cfg.Store.Token,
		Owner:  cfg.Store.Owner,
		Repo:   cfg.Store.Repo,
		Branch: cfg.Store.Branch,
	}, log.With(logx.String("comp", "remote")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	// A broken profile is survivable: the loop keeps serving custom events
	// and the operator fixes the file without losing the sent-record.
	profile, skipped, err := catalog.Load(cfg.ProfilePath)
	if err != nil {
		log.Error("profile load failed; continuing with an empty catalog",
			logx.String("path", cfg.ProfilePath), logx.Err(err))
		profile, _, _ = catalog.Parse([]byte(`{}`))
	} else if len(skipped) > 0 {
		log.Warn("profile has malformed timers; skipped",
			logx.Any("ids", skipped), logx.Int("kept", len(profile.Timers)))
	}

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	sent := alert.NewSentRecord()
	if store != nil {
		m, err := store.LoadSent(context.Background())
		if err != nil {
			log.Warn("sent-record restore failed; starting empty", logx.Err(err))
		} else if len(m) > 0 {
			sent.Restore(m)
			log.Info("sent-record restored", logx.Int("markers", len(m)))
		}
	}

	a := &App{
		cfgm:         cfgm,
		cfg:          cfg,
		log:          log,
		logs:         logSvc,
		ring:         ring,
		profile:      profile,
		clock:        clockwork.NewRealClock(),
		remote:       rs,
		store:        store,
		disp:         delivery.NewDispatcher(log.With(logx.String("comp", "delivery"))),
		sent:         sent,
		grace:        alert.DefaultGrace,
		observations: map[string]spawn.Observation{},
		events:       map[string]string{},
	}
	a.engine = alert.NewEngine(a.grace, profile.HighLevelThreshold, catalog.DefaultTiers(),
		log.With(logx.String("comp", "alert")))
	a.records = spawn.Merge(profile.Timers, a.observations)
	a.sentCount = sent.Len()
	a.status = newStatusServer(log.With(logx.String("comp", "status")), a.statusSnapshot)
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	resyncEvery, evaluateEvery, err := a.cfg.Cadences()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// First cycle runs inline so the process is useful before the first tick.
	a.resync(runCtx)
	a.evaluate(runCtx)

	a.cron = cron.New()
	a.cron.Schedule(cron.Every(resyncEvery), cron.FuncJob(func() {
		a.resync(runCtx)
		a.evaluate(runCtx)
	}))
	a.cron.Schedule(cron.Every(evaluateEvery), cron.FuncJob(func() {
		a.evaluate(runCtx)
	}))
	a.cron.Start()
	a.log.Info("sync loop started",
		logx.Duration("resync_every", resyncEvery),
		logx.Duration("evaluate_every", evaluateEvery))

	a.status.Apply(runCtx, a.cfg.Status)

	// Hot reload covers the ambient knobs only; cadences and the profile are
	// read once at startup.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetOnChange(func(cfg *config.Config) {
		a.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
		a.status.Apply(runCtx, cfg.Status)
	})
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		a.wg.Add(1)
		go a.watchdogLoop(runCtx, interval/2)
	}

	a.log.Info("app started")
	return nil
}

func (a *App) watchdogLoop(ctx context.Context, every time.Duration) {
	defer a.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				a.log.Debug("sd_notify watchdog failed", logx.Err(err))
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.cron != nil {
		// Wait for an in-flight cycle; bounded by the caller's ctx.
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			a.log.Warn("cycle still running at stop deadline")
		}
	}
	a.status.Stop(ctx)
	a.wg.Wait()

	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("storage close: %w", err)
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
	return firstErr
}

// statusSnapshot is read by the status server from its own goroutine.
func (a *App) statusSnapshot() StatusSnapshot {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()

	now := a.clock.Now()
	s := StatusSnapshot{
		GameName:       a.profile.GameName,
		Now:            now,
		LastResync:     a.lastResync,
		LastEvaluate:   a.lastEvaluate,
		SettingsLoaded: a.settings != nil,
		SentMarkers:    a.sentCount,
		Confirmed:      []StatusPrediction{},
		Unconfirmed:    []string{},
		Log:            a.ring.Snapshot(),
	}
	for _, p := range a.agenda.Confirmed {
		s.Confirmed = append(s.Confirmed, StatusPrediction{
			ID:      p.Def.ID,
			Name:    p.Def.Name,
			SpawnAt: p.SpawnAt,
			In:      p.SpawnAt.Sub(now).Round(time.Second).String(),
		})
	}
	for _, p := range a.agenda.Unconfirmed {
		s.Unconfirmed = append(s.Unconfirmed, p.Def.Name)
	}
	return s
}
