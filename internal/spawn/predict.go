package spawn

import (
	"time"

	"spawnbot/internal/catalog"
	logx "spawnbot/pkg/logx"
)

// Predict computes a next-spawn prediction for every live record.
//
// Floating: a confirmed observation's "date time" is parsed under
// SpawnTimeLayout in now's location; anything else (absent, placeholder,
// malformed) yields an unconfirmed prediction.
//
// Fixed: always confirmed by policy. The anchor date is today, or tomorrow
// when now's time-of-day is strictly past the timer's time-of-day (dates are
// ignored in the comparison). A malformed catalog time-of-day skips just that
// timer for this cycle.
//
// Result order is input order; the agenda sorts.
func Predict(records []LiveRecord, now time.Time, log logx.Logger) []Prediction {
	preds := make([]Prediction, 0, len(records))
	for _, rec := range records {
		switch rec.Def.Policy {
		case catalog.PolicyFixed:
			p, ok := predictFixed(rec.Def, now, log)
			if !ok {
				continue
			}
			preds = append(preds, p)
		case catalog.PolicyFloating:
			preds = append(preds, predictFloating(rec, now))
		}
	}
	return preds
}

func predictFixed(def catalog.TimerDefinition, now time.Time, log logx.Logger) (Prediction, bool) {
	h, m, err := catalog.ParseTimeOfDay(def.TimeOfDay)
	if err != nil {
		if !log.IsZero() {
			log.Error("fixed timer has malformed time of day; skipping this cycle",
				logx.String("timer", def.ID), logx.String("time", def.TimeOfDay), logx.Err(err))
		}
		return Prediction{}, false
	}

	anchor := now
	if pastTimeOfDay(now, h, m) {
		anchor = now.AddDate(0, 0, 1)
	}
	spawn := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), h, m, 0, 0, now.Location())
	return Prediction{Def: def, SpawnAt: spawn, Confirmed: true}, true
}

// pastTimeOfDay reports whether now's time-of-day is strictly after hh:mm.
func pastTimeOfDay(now time.Time, hour, minute int) bool {
	nowSecs := now.Hour()*3600 + now.Minute()*60 + now.Second()
	return nowSecs > hour*3600+minute*60
}

func predictFloating(rec LiveRecord, now time.Time) Prediction {
	p := Prediction{Def: rec.Def}
	if !rec.HasObs || !rec.Obs.Confirmed() {
		return p
	}
	spawn, err := time.ParseInLocation(SpawnTimeLayout, rec.Obs.Date+" "+rec.Obs.Time, now.Location())
	if err != nil {
		return p
	}
	p.SpawnAt = spawn
	p.Confirmed = true
	return p
}
