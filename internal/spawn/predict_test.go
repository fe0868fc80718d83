package spawn

import (
	"testing"
	"time"

	"spawnbot/internal/catalog"
	logx "spawnbot/pkg/logx"
)

func fixedDef(id, tod string) catalog.TimerDefinition {
	return catalog.TimerDefinition{
		ID: id, Name: id, Policy: catalog.PolicyFixed, TimeOfDay: tod,
		Tiers: catalog.DefaultTiers(),
	}
}

func floatingDef(id string) catalog.TimerDefinition {
	return catalog.TimerDefinition{
		ID: id, Name: id, Policy: catalog.PolicyFloating,
		Tiers: catalog.DefaultTiers(),
	}
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation(SpawnTimeLayout, value, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestPredictFixedAnchorDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  string
		tod  string
		want string
	}{
		{name: "before time today", now: "2024-01-01 08:00", tod: "09:00", want: "2024-01-01 09:00"},
		{name: "past time tomorrow", now: "2024-01-01 10:00", tod: "09:00", want: "2024-01-02 09:00"},
		{name: "exactly at time stays today", now: "2024-01-01 09:00", tod: "09:00", want: "2024-01-01 09:00"},
		{name: "midnight boundary", now: "2024-01-01 23:59", tod: "00:30", want: "2024-01-02 00:30"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			recs := Merge([]catalog.TimerDefinition{fixedDef("boss", tt.tod)}, nil)
			preds := Predict(recs, at(t, tt.now), logx.Nop())
			if len(preds) != 1 {
				t.Fatalf("predictions = %d, want 1", len(preds))
			}
			p := preds[0]
			if !p.Confirmed {
				t.Fatal("fixed prediction must be confirmed")
			}
			if got := p.SpawnAt.Format(SpawnTimeLayout); got != tt.want {
				t.Fatalf("SpawnAt = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPredictFixedSecondsCountAsPast(t *testing.T) {
	t.Parallel()
	// 09:00:30 is strictly past 09:00, so the anchor moves to tomorrow.
	now := at(t, "2024-01-01 09:00").Add(30 * time.Second)
	preds := Predict(Merge([]catalog.TimerDefinition{fixedDef("boss", "09:00")}, nil), now, logx.Nop())
	if got := preds[0].SpawnAt.Format(SpawnTimeLayout); got != "2024-01-02 09:00" {
		t.Fatalf("SpawnAt = %s, want 2024-01-02 09:00", got)
	}
}

func TestPredictFixedMalformedSkipped(t *testing.T) {
	t.Parallel()
	defs := []catalog.TimerDefinition{
		fixedDef("bad", "25:99"),
		fixedDef("good", "12:00"),
	}
	preds := Predict(Merge(defs, nil), at(t, "2024-01-01 08:00"), logx.Nop())
	if len(preds) != 1 || preds[0].Def.ID != "good" {
		t.Fatalf("predictions = %+v", preds)
	}
}

func TestPredictFloatingRoundTrip(t *testing.T) {
	t.Parallel()
	remote := map[string]Observation{
		"drake": {Date: "2024-03-05", Time: "18:45", Status: "confirmed"},
	}
	recs := Merge([]catalog.TimerDefinition{floatingDef("drake")}, remote)
	preds := Predict(recs, at(t, "2024-03-05 10:00"), logx.Nop())

	if len(preds) != 1 || !preds[0].Confirmed {
		t.Fatalf("predictions = %+v", preds)
	}
	// Round-trips exactly under the fixed layout.
	if got := preds[0].SpawnAt.Format(SpawnTimeLayout); got != "2024-03-05 18:45" {
		t.Fatalf("SpawnAt = %s", got)
	}
}

func TestPredictFloatingUnconfirmedCases(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		remote map[string]Observation
	}{
		{name: "missing observation", remote: nil},
		{name: "legacy placeholder", remote: map[string]Observation{"drake": {Date: "2024-03-05", Time: "待確認"}}},
		{name: "tbc status", remote: map[string]Observation{"drake": {Date: "2024-03-05", Time: "18:45", Status: "tbc"}}},
		{name: "no date", remote: map[string]Observation{"drake": {Time: "18:45"}}},
		{name: "malformed time", remote: map[string]Observation{"drake": {Date: "2024-03-05", Time: "18h45"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			recs := Merge([]catalog.TimerDefinition{floatingDef("drake")}, tt.remote)
			preds := Predict(recs, at(t, "2024-03-05 10:00"), logx.Nop())
			if len(preds) != 1 {
				t.Fatalf("predictions = %d, want 1", len(preds))
			}
			if preds[0].Confirmed {
				t.Fatalf("expected unconfirmed, got %+v", preds[0])
			}
			if !preds[0].SpawnAt.IsZero() {
				t.Fatalf("unconfirmed prediction carries timestamp %v", preds[0].SpawnAt)
			}
		})
	}
}

func TestMergeKeepsCatalogAuthority(t *testing.T) {
	t.Parallel()
	defs := []catalog.TimerDefinition{
		fixedDef("dawn", "09:00"),
		floatingDef("drake"),
	}
	remote := map[string]Observation{
		// Fixed timers never merge, even if the remote snapshot mentions them.
		"dawn":  {Date: "2024-01-01", Time: "03:00"},
		"drake": {Date: "2024-01-02", Time: "11:00"},
	}

	recs := Merge(defs, remote)
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].HasObs {
		t.Fatal("fixed record must not carry an observation")
	}
	if !recs[1].HasObs || recs[1].Obs.Time != "11:00" {
		t.Fatalf("floating record = %+v", recs[1])
	}
}
