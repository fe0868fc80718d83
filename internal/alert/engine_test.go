package alert

import (
	"strings"
	"testing"
	"time"

	"spawnbot/internal/catalog"
	"spawnbot/internal/spawn"
	logx "spawnbot/pkg/logx"
)

func testDef(id string, level int, tiers ...catalog.Tier) catalog.TimerDefinition {
	if len(tiers) == 0 {
		tiers = []catalog.Tier{{Label: "imminent", Lead: 10 * time.Minute}}
	}
	return catalog.TimerDefinition{ID: id, Name: id, Policy: catalog.PolicyFixed, Level: level, Tiers: tiers}
}

func agendaFor(preds ...spawn.Prediction) spawn.Agenda {
	return spawn.BuildAgenda(preds)
}

func ts(t *testing.T, v string) time.Time {
	t.Helper()
	out, err := time.ParseInLocation(spawn.SpawnTimeLayout, v, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return out
}

func TestEvaluateFiresInsideWindowOnce(t *testing.T) {
	t.Parallel()
	e := NewEngine(0, 62, nil, logx.Nop())
	rec := NewSentRecord()
	spawnAt := ts(t, "2024-01-01 09:00")
	a := agendaFor(spawn.Prediction{Def: testDef("dawn", 10), SpawnAt: spawnAt, Confirmed: true})

	// 08:49 is 11m before spawn, outside the 10m threshold.
	if got := e.Evaluate(a, nil, ts(t, "2024-01-01 08:49"), rec); len(got) != 0 {
		t.Fatalf("alerts at 08:49 = %+v", got)
	}

	// At exactly threshold distance: one alert.
	got := e.Evaluate(a, nil, ts(t, "2024-01-01 08:50"), rec)
	if len(got) != 1 {
		t.Fatalf("alerts at 08:50 = %+v", got)
	}
	al := got[0]
	if al.Tier != "imminent" || al.TimerID != "dawn" || al.Lead != 10*time.Minute {
		t.Fatalf("alert = %+v", al)
	}

	// Carried-forward record: no re-fire on an unchanged agenda.
	rec.Mark(al.Key, al.SpawnAt)
	for i := 0; i < 3; i++ {
		if again := e.Evaluate(a, nil, ts(t, "2024-01-01 08:50"), rec); len(again) != 0 {
			t.Fatalf("repeat evaluate %d emitted %+v", i, again)
		}
	}
}

func TestEvaluateTiersIndependent(t *testing.T) {
	t.Parallel()
	tiers := []catalog.Tier{
		{Label: "early", Lead: 60 * time.Minute},
		{Label: "imminent", Lead: 10 * time.Minute},
	}
	e := NewEngine(0, 62, nil, logx.Nop())
	rec := NewSentRecord()
	spawnAt := ts(t, "2024-01-01 09:00")
	a := agendaFor(spawn.Prediction{Def: testDef("dawn", 10, tiers...), SpawnAt: spawnAt, Confirmed: true})

	// 45m out: only "early".
	got := e.Evaluate(a, nil, ts(t, "2024-01-01 08:15"), rec)
	if len(got) != 1 || got[0].Tier != "early" {
		t.Fatalf("alerts at 08:15 = %+v", got)
	}
	rec.Mark(got[0].Key, got[0].SpawnAt)

	// 5m out: "imminent" fires, "early" stays deduped.
	got = e.Evaluate(a, nil, ts(t, "2024-01-01 08:55"), rec)
	if len(got) != 1 || got[0].Tier != "imminent" {
		t.Fatalf("alerts at 08:55 = %+v", got)
	}
}

func TestEvaluateBothTiersWhenStartedLate(t *testing.T) {
	t.Parallel()
	tiers := []catalog.Tier{
		{Label: "early", Lead: 60 * time.Minute},
		{Label: "imminent", Lead: 10 * time.Minute},
	}
	e := NewEngine(0, 62, nil, logx.Nop())
	rec := NewSentRecord()
	spawnAt := ts(t, "2024-01-01 09:00")
	a := agendaFor(spawn.Prediction{Def: testDef("dawn", 10, tiers...), SpawnAt: spawnAt, Confirmed: true})

	// First evaluation already inside both windows: both tiers fire, early first.
	got := e.Evaluate(a, nil, ts(t, "2024-01-01 08:55"), rec)
	if len(got) != 2 || got[0].Tier != "early" || got[1].Tier != "imminent" {
		t.Fatalf("alerts = %+v", got)
	}
}

func TestEvaluateSkipsPassedSpawns(t *testing.T) {
	t.Parallel()
	e := NewEngine(0, 62, nil, logx.Nop())
	rec := NewSentRecord()
	a := agendaFor(spawn.Prediction{Def: testDef("dawn", 10), SpawnAt: ts(t, "2024-01-01 09:00"), Confirmed: true})

	// One minute after spawn: negative lead, nothing fires.
	if got := e.Evaluate(a, nil, ts(t, "2024-01-01 09:01"), rec); len(got) != 0 {
		t.Fatalf("alerts after spawn = %+v", got)
	}
}

func TestPurgeAllowsNextInstance(t *testing.T) {
	t.Parallel()
	grace := 3 * time.Hour
	e := NewEngine(grace, 62, nil, logx.Nop())
	rec := NewSentRecord()

	day1 := ts(t, "2024-01-01 09:00")
	day2 := ts(t, "2024-01-02 09:00")
	def := testDef("dawn", 10)

	got := e.Evaluate(agendaFor(spawn.Prediction{Def: def, SpawnAt: day1, Confirmed: true}), nil, ts(t, "2024-01-01 08:50"), rec)
	if len(got) != 1 {
		t.Fatalf("day1 alerts = %+v", got)
	}
	rec.Mark(got[0].Key, got[0].SpawnAt)

	// Just inside the grace window the marker must survive.
	_ = e.Evaluate(spawn.Agenda{}, nil, day1.Add(grace-time.Second), rec)
	if rec.Len() != 1 {
		t.Fatalf("marker purged too early, len = %d", rec.Len())
	}

	// Past grace + 1s the marker is gone and the next instance notifies.
	got = e.Evaluate(agendaFor(spawn.Prediction{Def: def, SpawnAt: day2, Confirmed: true}), nil, day2.Add(-10*time.Minute), rec)
	if len(got) != 1 || got[0].SpawnAt != day2 {
		t.Fatalf("day2 alerts = %+v", got)
	}
	if rec.Seen(InstanceKey("dawn", day1, "imminent")) {
		t.Fatal("day1 marker survived past grace")
	}
}

func TestHighSeverityRouting(t *testing.T) {
	t.Parallel()
	e := NewEngine(0, 62, nil, logx.Nop())
	rec := NewSentRecord()
	spawnAt := ts(t, "2024-01-01 09:00")
	a := agendaFor(
		spawn.Prediction{Def: testDef("big", 62), SpawnAt: spawnAt, Confirmed: true},
		spawn.Prediction{Def: testDef("small", 61), SpawnAt: spawnAt, Confirmed: true},
	)

	got := e.Evaluate(a, nil, ts(t, "2024-01-01 08:55"), rec)
	if len(got) != 2 {
		t.Fatalf("alerts = %+v", got)
	}
	byID := map[string]Alert{}
	for _, al := range got {
		byID[al.TimerID] = al
	}
	if !byID["big"].HighSeverity || byID["small"].HighSeverity {
		t.Fatalf("severity routing wrong: %+v", byID)
	}
	if !strings.HasPrefix(byID["big"].Message, "🚨") || !strings.HasPrefix(byID["small"].Message, "⏰") {
		t.Fatalf("message prefixes wrong: %q / %q", byID["big"].Message, byID["small"].Message)
	}
}

func TestEvaluateCustomEvents(t *testing.T) {
	t.Parallel()
	e := NewEngine(0, 62, []catalog.Tier{{Label: "imminent", Lead: 10 * time.Minute}}, logx.Nop())
	rec := NewSentRecord()
	events := map[string]string{
		"guild war":  "2024-01-01 21:00",
		"bad value":  "tonight",
		"next month": "2024-02-01 21:00",
	}

	got := e.Evaluate(spawn.Agenda{}, events, ts(t, "2024-01-01 20:55"), rec)
	if len(got) != 1 {
		t.Fatalf("alerts = %+v", got)
	}
	al := got[0]
	if al.TimerID != EventIDPrefix+"guild war" || al.HighSeverity {
		t.Fatalf("alert = %+v", al)
	}
	rec.Mark(al.Key, al.SpawnAt)

	if again := e.Evaluate(spawn.Agenda{}, events, ts(t, "2024-01-01 20:56"), rec); len(again) != 0 {
		t.Fatalf("event re-fired: %+v", again)
	}
}

func TestFormatLead(t *testing.T) {
	t.Parallel()
	tests := []struct {
		lead time.Duration
		want string
	}{
		{0, "moments"},
		{30 * time.Second, "1m"},
		{10 * time.Minute, "10m"},
		{9*time.Minute + 30*time.Second, "10m"},
		{90 * time.Minute, "1h30m"},
	}
	for _, tt := range tests {
		if got := formatLead(tt.lead); got != tt.want {
			t.Fatalf("formatLead(%v) = %q, want %q", tt.lead, got, tt.want)
		}
	}
}
