// Package catalog loads the local game profile: the authoritative list of
// trackable timers, their scheduling policy, and notification tiers.
//
// The profile is read once per process lifetime. Remote state never changes
// policy or identity; it only contributes observations (see internal/spawn).
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Policy string

const (
	PolicyFixed    Policy = "fixed"
	PolicyFloating Policy = "floating"
)

// Tier is a named lead-time threshold at which a distinct notification fires.
type Tier struct {
	Label string
	Lead  time.Duration
}

// TimerDefinition is one immutable catalog entry.
//
// Fixed timers recur at TimeOfDay every day. Floating timers recur a
// RespawnMin..RespawnMax window after an externally observed kill; their next
// spawn is only known once the remote store reports it.
type TimerDefinition struct {
	ID     string
	Name   string
	Policy Policy

	// TimeOfDay is "HH:MM"; set for fixed timers.
	TimeOfDay string

	// Respawn window after a kill; informational for floating timers.
	RespawnMin time.Duration
	RespawnMax time.Duration

	// Level routes alerts: timers at or above the profile threshold also go
	// to the high-severity channel list.
	Level int

	// Tiers are resolved at load time (per-timer override or profile default)
	// and kept sorted by descending lead so "early" always evaluates before
	// "imminent".
	Tiers []Tier
}

// Profile is the parsed game profile.
type Profile struct {
	GameName           string
	HighLevelThreshold int
	Timers             []TimerDefinition
}

// DefaultTiers apply when neither the profile nor the timer declares any.
func DefaultTiers() []Tier {
	return []Tier{
		{Label: "early", Lead: 60 * time.Minute},
		{Label: "imminent", Lead: 10 * time.Minute},
	}
}

// defaultHighLevelThreshold matches the long-standing dashboard default.
const defaultHighLevelThreshold = 62

// ---- raw JSON shapes ----

type rawProfile struct {
	GameName      string          `json:"game_name"`
	CloudSettings rawCloudSet     `json:"cloud_settings"`
	NotifyTiers   []rawTier       `json:"notify_tiers"`
	Timers        []rawDefinition `json:"timers"`
}

type rawCloudSet struct {
	HighLevelThreshold int `json:"high_level_threshold"`
}

type rawTier struct {
	Label       string `json:"label"`
	LeadMinutes int    `json:"lead_minutes"`
}

type rawDefinition struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Time            string    `json:"time,omitempty"`
	RespawnHoursMin float64   `json:"respawn_hours_min,omitempty"`
	RespawnHoursMax float64   `json:"respawn_hours_max,omitempty"`
	Level           int       `json:"level,omitempty"`
	Tiers           []rawTier `json:"tiers,omitempty"`
}

// Load reads and validates the profile at path.
//
// Individual malformed timers are dropped and reported in skipped (one message
// per timer) rather than failing the whole catalog; a timer the catalog cannot
// describe is a timer that cannot notify, nothing more.
func Load(path string) (*Profile, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(b)
}

// Parse decodes a profile document.
func Parse(b []byte) (*Profile, []string, error) {
	var raw rawProfile
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode profile: %w", err)
	}

	p := &Profile{
		GameName:           strings.TrimSpace(raw.GameName),
		HighLevelThreshold: raw.CloudSettings.HighLevelThreshold,
	}
	if p.HighLevelThreshold <= 0 {
		p.HighLevelThreshold = defaultHighLevelThreshold
	}

	defaults := convertTiers(raw.NotifyTiers)
	if len(defaults) == 0 {
		defaults = DefaultTiers()
	}

	var skipped []string
	seen := make(map[string]bool, len(raw.Timers))
	for _, rt := range raw.Timers {
		def, err := convertDefinition(rt, defaults)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("timer %q: %v", pick(rt.ID, rt.Name), err))
			continue
		}
		if seen[def.ID] {
			skipped = append(skipped, fmt.Sprintf("timer %q: duplicate id", def.ID))
			continue
		}
		seen[def.ID] = true
		p.Timers = append(p.Timers, def)
	}
	return p, skipped, nil
}

func convertDefinition(rt rawDefinition, defaults []Tier) (TimerDefinition, error) {
	id := strings.TrimSpace(rt.ID)
	if id == "" {
		return TimerDefinition{}, fmt.Errorf("missing id")
	}
	name := strings.TrimSpace(rt.Name)
	if name == "" {
		name = id
	}

	def := TimerDefinition{
		ID:    id,
		Name:  name,
		Level: rt.Level,
		Tiers: defaults,
	}
	if tiers := convertTiers(rt.Tiers); len(tiers) > 0 {
		def.Tiers = tiers
	}

	switch strings.ToLower(strings.TrimSpace(rt.Type)) {
	case "fixed":
		def.Policy = PolicyFixed
		if _, _, err := ParseTimeOfDay(rt.Time); err != nil {
			return TimerDefinition{}, err
		}
		def.TimeOfDay = strings.TrimSpace(rt.Time)
	case "floating":
		def.Policy = PolicyFloating
		def.RespawnMin = time.Duration(rt.RespawnHoursMin * float64(time.Hour))
		def.RespawnMax = time.Duration(rt.RespawnHoursMax * float64(time.Hour))
		if def.RespawnMax > 0 && def.RespawnMax < def.RespawnMin {
			return TimerDefinition{}, fmt.Errorf("respawn window max < min")
		}
	default:
		return TimerDefinition{}, fmt.Errorf("unknown type %q", rt.Type)
	}
	return def, nil
}

func convertTiers(raws []rawTier) []Tier {
	tiers := make([]Tier, 0, len(raws))
	for _, r := range raws {
		label := strings.TrimSpace(r.Label)
		if label == "" || r.LeadMinutes <= 0 {
			continue
		}
		tiers = append(tiers, Tier{Label: label, Lead: time.Duration(r.LeadMinutes) * time.Minute})
	}
	// Descending lead: widest window first.
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Lead > tiers[j].Lead })
	return tiers
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func pick(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
