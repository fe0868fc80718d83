// Package alert decides which notifications are due: it walks the agenda
// against the configured lead-time tiers and dedups per spawn instance, so
// every (timer, instance, tier) triple fires at most once.
package alert

import (
	"fmt"
	"sort"
	"time"

	"spawnbot/internal/catalog"
	"spawnbot/internal/spawn"
	logx "spawnbot/pkg/logx"
)

// DefaultGrace is how long a spawn instance's sent-markers outlive the spawn
// itself. Long enough that a late cycle cannot re-fire a just-passed instance,
// short enough to bound the record.
const DefaultGrace = 3 * time.Hour

// EventIDPrefix namespaces custom (non-timer) events in instance keys so they
// can never collide with a catalog timer id.
const EventIDPrefix = "event:"

// Alert is one outbound notification decision.
type Alert struct {
	TimerID   string
	TimerName string
	Tier      string

	// Key is the dedup triple; the loop marks it sent after delivery.
	Key     string
	SpawnAt time.Time
	Lead    time.Duration

	// HighSeverity routes the alert to the high-severity channel list in
	// addition to the all-channels list.
	HighSeverity bool

	Message string
}

// Engine evaluates the agenda. It holds no mutable state of its own; the
// sent-record travels with the loop.
type Engine struct {
	grace         time.Duration
	highThreshold int
	eventTiers    []catalog.Tier
	log           logx.Logger
}

// NewEngine builds an engine.
//
// highThreshold is the timer level at and above which alerts are high
// severity; eventTiers are the thresholds applied to custom events (usually
// the profile defaults). grace <= 0 falls back to DefaultGrace.
func NewEngine(grace time.Duration, highThreshold int, eventTiers []catalog.Tier, log logx.Logger) *Engine {
	if grace <= 0 {
		grace = DefaultGrace
	}
	if len(eventTiers) == 0 {
		eventTiers = catalog.DefaultTiers()
	}
	return &Engine{grace: grace, highThreshold: highThreshold, eventTiers: eventTiers, log: log}
}

// Evaluate purges expired sent-markers, then returns every alert due at now
// that has not been marked sent. It never marks: marking is the dispatcher's
// call after a confirmed delivery, so transient failures retry next cycle.
func (e *Engine) Evaluate(a spawn.Agenda, events map[string]string, now time.Time, rec *SentRecord) []Alert {
	if removed := rec.Purge(now, e.grace); removed > 0 && !e.log.IsZero() {
		e.log.Debug("purged expired sent-markers", logx.Int("removed", removed), logx.Int("remaining", rec.Len()))
	}

	var alerts []Alert
	for _, p := range a.Confirmed {
		alerts = append(alerts, e.evaluateTimer(p, now, rec)...)
	}
	alerts = append(alerts, e.evaluateEvents(events, now, rec)...)
	return alerts
}

func (e *Engine) evaluateTimer(p spawn.Prediction, now time.Time, rec *SentRecord) []Alert {
	var alerts []Alert
	// Tiers come pre-sorted by descending lead, so "early" is considered
	// before "imminent" within the same cycle.
	for _, tier := range p.Def.Tiers {
		lead := p.SpawnAt.Sub(now)
		if lead < 0 || lead > tier.Lead {
			continue
		}
		key := InstanceKey(p.Def.ID, p.SpawnAt, tier.Label)
		if rec.Seen(key) {
			continue
		}
		high := p.Def.Level >= e.highThreshold
		alerts = append(alerts, Alert{
			TimerID:      p.Def.ID,
			TimerName:    p.Def.Name,
			Tier:         tier.Label,
			Key:          key,
			SpawnAt:      p.SpawnAt,
			Lead:         lead,
			HighSeverity: high,
			Message:      formatMessage(p.Def.Name, tier.Label, lead, p.SpawnAt, high),
		})
	}
	return alerts
}

// evaluateEvents applies the same lead/threshold/dedup discipline to custom
// (non-timer) events: name -> "YYYY-MM-DD HH:MM".
func (e *Engine) evaluateEvents(events map[string]string, now time.Time, rec *SentRecord) []Alert {
	if len(events) == 0 {
		return nil
	}
	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	sort.Strings(names)

	var alerts []Alert
	for _, name := range names {
		target, err := time.ParseInLocation(spawn.SpawnTimeLayout, events[name], now.Location())
		if err != nil {
			if !e.log.IsZero() {
				e.log.Warn("custom event has malformed timestamp; skipping this cycle",
					logx.String("event", name), logx.String("value", events[name]), logx.Err(err))
			}
			continue
		}
		id := EventIDPrefix + name
		for _, tier := range e.eventTiers {
			lead := target.Sub(now)
			if lead < 0 || lead > tier.Lead {
				continue
			}
			key := InstanceKey(id, target, tier.Label)
			if rec.Seen(key) {
				continue
			}
			alerts = append(alerts, Alert{
				TimerID:   id,
				TimerName: name,
				Tier:      tier.Label,
				Key:       key,
				SpawnAt:   target,
				Lead:      lead,
				Message:   formatMessage(name, tier.Label, lead, target, false),
			})
		}
	}
	return alerts
}

func formatMessage(name, tier string, lead time.Duration, spawnAt time.Time, high bool) string {
	prefix := "⏰"
	if high {
		prefix = "🚨"
	}
	return fmt.Sprintf("%s [%s] %s spawns in %s (at %s)",
		prefix, tier, name, formatLead(lead), spawnAt.Format("15:04"))
}

// formatLead rounds up to whole minutes; "9m30s before spawn" reads as 10m.
func formatLead(lead time.Duration) string {
	if lead <= 0 {
		return "moments"
	}
	mins := int((lead + time.Minute - 1) / time.Minute)
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", mins/60, mins%60)
}
