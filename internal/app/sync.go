package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"spawnbot/internal/alert"
	"spawnbot/internal/delivery"
	"spawnbot/internal/remote"
	"spawnbot/internal/spawn"
	"spawnbot/internal/storage"
	logx "spawnbot/pkg/logx"
)

// defaultSettingsFile is where the settings form writes its record.
const defaultSettingsFile = "settings.json"

// resync is the long cadence: re-download settings, the timer snapshot and the
// custom events from the remote store, then rebuild the live records.
//
// Every failure is partial by design: whatever could not be fetched this cycle
// keeps its previous value, and the next tick tries again.
func (a *App) resync(ctx context.Context) {
	a.loopMu.Lock()
	defer a.loopMu.Unlock()

	settings := a.resyncSettings(ctx)
	if settings == nil {
		// Without settings there is nothing to deliver to and no snapshot
		// paths to read; evaluate stays quiet until the first success.
		return
	}

	obs := a.resyncTimers(ctx, settings)
	events := a.resyncEvents(ctx, settings)
	records := spawn.Merge(a.profile.Timers, obs)

	a.stateMu.Lock()
	a.settings = settings
	a.observations = obs
	a.records = records
	a.events = events
	a.lastResync = a.clock.Now()
	a.stateMu.Unlock()

	a.log.Debug("resync complete",
		logx.Int("timers", len(records)),
		logx.Int("observations", len(obs)),
		logx.Int("events", len(events)))
}

// resyncSettings fetches and applies the settings record. Returns the
// effective settings, or nil when none have ever loaded.
func (a *App) resyncSettings(ctx context.Context) *Settings {
	path := strings.TrimSpace(a.cfg.Store.SettingsFile)
	if path == "" {
		path = defaultSettingsFile
	}

	prev := a.currentSettings()
	b, err := a.remote.Read(ctx, path)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			a.log.Warn("settings record missing in remote store", logx.String("path", path))
		} else {
			a.log.Warn("settings fetch failed; keeping previous", logx.String("path", path), logx.Err(err))
		}
		return prev
	}
	settings, err := ParseSettings(b)
	if err != nil {
		a.log.Warn("settings record malformed; keeping previous", logx.String("path", path), logx.Err(err))
		return prev
	}

	// The settings form may rotate the store credentials; last writer wins.
	if settings.StoreChanged(prev) && strings.TrimSpace(settings.GithubToken) != "" {
		rs, err := remote.Open(remote.Config{
			Token:  settings.GithubToken,
			Owner:  settings.GithubUser,
			Repo:   settings.GithubRepo,
			Branch: a.cfg.Store.Branch,
		}, a.log.With(logx.String("comp", "remote")))
		if err != nil {
			a.log.Warn("rotated store credentials rejected; keeping previous client", logx.Err(err))
		} else {
			a.remote = rs
			a.log.Info("remote store client rebuilt from settings",
				logx.String("owner", settings.GithubUser), logx.String("repo", settings.GithubRepo))
		}
	}

	a.configureSinks(settings)
	return settings
}

// configureSinks rebuilds the delivery fan-out from the settings record.
func (a *App) configureSinks(s *Settings) {
	var sinks []delivery.Sink
	if s.SendDiscord && strings.TrimSpace(s.DiscordToken) != "" {
		sinks = append(sinks, delivery.NewDiscord(
			s.DiscordToken, s.DiscordHighLevelChannels, s.DiscordAllChannels))
	}
	if s.SendTelegram && strings.TrimSpace(s.TelegramToken) != "" {
		tg, err := delivery.NewTelegram(
			s.TelegramToken, s.TelegramHighLevelIDs, s.TelegramAllIDs, false)
		if err != nil {
			a.log.Warn("telegram sink rejected", logx.Err(err))
		} else {
			sinks = append(sinks, tg)
		}
	}
	a.disp.Configure(sinks, s.RatePerSec)
	if len(sinks) == 0 {
		a.log.Warn("no delivery sinks configured; alerts will not be sent")
	}
}

// resyncTimers fetches the per-timer observation snapshot.
//
// A missing file is an empty snapshot (the reporter has not written yet);
// a transport error keeps the previous one.
func (a *App) resyncTimers(ctx context.Context, s *Settings) map[string]spawn.Observation {
	b, err := a.remote.Read(ctx, s.TimersFile())
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return map[string]spawn.Observation{}
		}
		a.log.Warn("timer snapshot fetch failed; keeping previous",
			logx.String("path", s.TimersFile()), logx.Err(err))
		return a.currentObservations()
	}
	var obs map[string]spawn.Observation
	if err := json.Unmarshal(b, &obs); err != nil {
		a.log.Warn("timer snapshot malformed; keeping previous",
			logx.String("path", s.TimersFile()), logx.Err(err))
		return a.currentObservations()
	}
	if obs == nil {
		obs = map[string]spawn.Observation{}
	}
	return obs
}

// resyncEvents fetches the custom events map: name -> "YYYY-MM-DD HH:MM".
func (a *App) resyncEvents(ctx context.Context, s *Settings) map[string]string {
	b, err := a.remote.Read(ctx, s.EventsFile())
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return map[string]string{}
		}
		a.log.Warn("custom events fetch failed; keeping previous",
			logx.String("path", s.EventsFile()), logx.Err(err))
		return a.currentEvents()
	}
	var events map[string]string
	if err := json.Unmarshal(b, &events); err != nil {
		a.log.Warn("custom events malformed; keeping previous",
			logx.String("path", s.EventsFile()), logx.Err(err))
		return a.currentEvents()
	}
	if events == nil {
		events = map[string]string{}
	}
	return events
}

// evaluate is the short cadence: predict next spawns from the current records,
// walk the agenda against the tiers and dispatch whatever is due.
func (a *App) evaluate(ctx context.Context) {
	a.loopMu.Lock()
	defer a.loopMu.Unlock()

	a.stateMu.RLock()
	settings := a.settings
	records := a.records
	events := a.events
	a.stateMu.RUnlock()

	if settings == nil {
		a.log.Debug("skipping evaluate: settings have not loaded yet")
		return
	}

	now := a.clock.Now()
	preds := spawn.Predict(records, now, a.log)
	agenda := spawn.BuildAgenda(preds)

	// With delivery switched off there is nothing to mark sent; the agenda
	// still refreshes so the status surface stays current.
	var alerts []alert.Alert
	if a.disp.HasSinks() {
		alerts = a.engine.Evaluate(agenda, events, now, a.sent)
	}

	for _, al := range alerts {
		if ctx.Err() != nil {
			break
		}
		ok, fail := a.disp.Dispatch(ctx, al.Message, al.HighSeverity)
		if ok == 0 {
			// Nothing confirmed delivery; leave the key unmarked so the
			// next cycle retries while the window is still open.
			if fail > 0 {
				a.log.Warn("alert not delivered; will retry",
					logx.String("key", al.Key), logx.Int("failed", fail))
			}
			continue
		}
		a.sent.Mark(al.Key, al.SpawnAt)
		a.log.Info("alert sent",
			logx.String("timer", al.TimerName),
			logx.String("tier", al.Tier),
			logx.Time("spawn_at", al.SpawnAt),
			logx.Int("ok", ok), logx.Int("fail", fail))
		a.persistAlert(ctx, al, ok, fail)
	}

	if a.store != nil {
		if err := a.store.PruneSent(ctx, now.Add(-a.grace)); err != nil {
			a.log.Warn("sent-record prune failed", logx.Err(err))
		}
	}

	a.stateMu.Lock()
	a.agenda = agenda
	a.sentCount = a.sent.Len()
	a.lastEvaluate = now
	a.stateMu.Unlock()
}

func (a *App) persistAlert(ctx context.Context, al alert.Alert, ok, fail int) {
	if a.store == nil {
		return
	}
	if err := a.store.PutSent(ctx, al.Key, al.SpawnAt); err != nil {
		a.log.Warn("sent-marker persist failed", logx.String("key", al.Key), logx.Err(err))
	}
	if err := a.store.AppendAlert(ctx, storage.AlertEntry{
		At:      a.clock.Now(),
		TimerID: al.TimerID,
		Tier:    al.Tier,
		SpawnAt: al.SpawnAt,
		Message: al.Message,
		OK:      ok,
		Fail:    fail,
	}); err != nil {
		a.log.Warn("alert history append failed", logx.Err(err))
	}
}

func (a *App) currentSettings() *Settings {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.settings
}

func (a *App) currentObservations() map[string]spawn.Observation {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.observations
}

func (a *App) currentEvents() map[string]string {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.events
}
