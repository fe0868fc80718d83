// Package spawn holds the temporal core: merging remote observations into the
// catalog, predicting next spawns, and building the time-ordered agenda.
//
// Everything here is a pure function of its inputs plus an explicit now; the
// sync loop owns the clock and the state.
package spawn

import (
	"strings"
	"time"

	"spawnbot/internal/catalog"
)

// SpawnTimeLayout is the wire format for absolute spawn timestamps
// ("date" + " " + "time" fields from the remote snapshot).
const SpawnTimeLayout = "2006-01-02 15:04"

// legacyUnconfirmed is the placeholder the old tooling wrote into the time
// field while a kill was awaiting confirmation. Mapped to unconfirmed at the
// boundary; never compared downstream.
const legacyUnconfirmed = "待確認"

// Observation is the per-timer state reported by the remote store.
type Observation struct {
	// Date is "2006-01-02"; Time is "15:04".
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`

	// LastKill is the observed kill the prediction is anchored to,
	// in SpawnTimeLayout. Informational.
	LastKill string `json:"last_kill,omitempty"`

	// Status is "" or "confirmed" for trusted observations, "tbc" while the
	// reporter has not confirmed the time yet.
	Status string `json:"status,omitempty"`
}

// Confirmed reports whether the observation carries a trusted spawn time.
func (o Observation) Confirmed() bool {
	t := strings.TrimSpace(o.Time)
	if t == "" || t == legacyUnconfirmed {
		return false
	}
	if strings.TrimSpace(o.Date) == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(o.Status)) {
	case "", "confirmed":
		return true
	default:
		return false
	}
}

// LiveRecord is a catalog definition plus whatever the remote store knows
// about it this cycle.
type LiveRecord struct {
	Def catalog.TimerDefinition

	// Obs is meaningful only when HasObs is set; floating timers without a
	// remote entry simply have not been observed yet.
	Obs    Observation
	HasObs bool
}

// Prediction is a single computed next-spawn for one timer.
//
// Invariant: Confirmed predictions carry a non-zero SpawnAt; unconfirmed ones
// are excluded from the agenda's sorted view but kept for display.
type Prediction struct {
	Def       catalog.TimerDefinition
	SpawnAt   time.Time
	Confirmed bool
}
