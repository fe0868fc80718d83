package spawn

import "spawnbot/internal/catalog"

// Merge overlays remote observations onto the catalog and returns one live
// record per definition.
//
// Remote is authoritative for observed state, the catalog for policy and
// identity. Floating definitions missing from the remote map get a record with
// no observation, which is an expected state rather than an error. Fixed
// definitions never merge; their anchor date is recomputed from the clock at
// prediction time.
func Merge(defs []catalog.TimerDefinition, remote map[string]Observation) []LiveRecord {
	records := make([]LiveRecord, 0, len(defs))
	for _, def := range defs {
		rec := LiveRecord{Def: def}
		if def.Policy == catalog.PolicyFloating {
			if obs, ok := remote[def.ID]; ok {
				rec.Obs = obs
				rec.HasObs = true
			}
		}
		records = append(records, rec)
	}
	return records
}
