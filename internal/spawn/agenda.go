package spawn

import "sort"

// Agenda is the per-cycle view over all predictions: confirmed ones sorted
// ascending by spawn time (stable under ties), unconfirmed kept aside for the
// status surface only.
//
// It is rebuilt from scratch every cycle; at this cadence recomputation is
// cheaper than being clever.
type Agenda struct {
	Confirmed   []Prediction
	Unconfirmed []Prediction
}

// BuildAgenda partitions and orders predictions.
func BuildAgenda(preds []Prediction) Agenda {
	var a Agenda
	for _, p := range preds {
		if p.Confirmed {
			a.Confirmed = append(a.Confirmed, p)
		} else {
			a.Unconfirmed = append(a.Unconfirmed, p)
		}
	}
	sort.SliceStable(a.Confirmed, func(i, j int) bool {
		return a.Confirmed[i].SpawnAt.Before(a.Confirmed[j].SpawnAt)
	})
	return a
}

// Next returns the earliest confirmed prediction, if any.
func (a Agenda) Next() (Prediction, bool) {
	if len(a.Confirmed) == 0 {
		return Prediction{}, false
	}
	return a.Confirmed[0], true
}
