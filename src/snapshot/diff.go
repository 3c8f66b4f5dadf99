package snapshot

import "stock-streamer/src/models"

// -----------------------------------------------------------------------------
// Diff Engine
// -----------------------------------------------------------------------------

// ComputeUpdates returns the records of current that are new or whose
// tracked fields (price, change, change percent) differ by value from
// previous. Output follows current's received order; unchanged records
// never appear. A nil or empty previous reports every current record
// (cold-start full push).
//
// Keys present only in previous are not reported as removals. The
// observed upstream behavior never emits removal events; kept as-is.
func ComputeUpdates(previous, current *models.MSnapshot) []models.MStockRecord {
	if current == nil {
		return nil
	}

	var updates []models.MStockRecord
	for _, code := range current.Order {
		record := current.Records[code]
		if previous != nil {
			if old, ok := previous.Records[code]; ok && old.Equal(record) {
				continue
			}
		}
		updates = append(updates, record)
	}
	return updates
}
