package models

import "time"

// Indicator values derived from the sign of Change.
const (
	IndicatorUp   = "Up"
	IndicatorDown = "Down"
)

// MStockRecord represents one instrument as served to subscribers.
type MStockRecord struct {
	TradingCode   string  `json:"tradingCode"`
	LastPrice     float64 `json:"lastPrice"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Indicator     string  `json:"indicator"`
}

// DeriveIndicator recomputes the indicator from Change. It is never
// taken from the upstream payload.
func (r *MStockRecord) DeriveIndicator() {
	if r.Change >= 0 {
		r.Indicator = IndicatorUp
	} else {
		r.Indicator = IndicatorDown
	}
}

// Equal compares the tracked fields (price, change, change percent).
// Indicator is derived and therefore not compared.
func (r MStockRecord) Equal(other MStockRecord) bool {
	return r.LastPrice == other.LastPrice &&
		r.Change == other.Change &&
		r.ChangePercent == other.ChangePercent
}

// -----------------------------------------------------------------------------

// MSnapshot is a complete tradingCode->record mapping captured at one
// point in time. Order preserves the sequence as received from upstream.
// A snapshot is immutable once built.
type MSnapshot struct {
	Records    map[string]MStockRecord
	Order      []string
	CapturedAt time.Time
}

// NewSnapshot builds a snapshot from an ordered record sequence.
// Duplicate trading codes keep the last occurrence but the original
// position in Order.
func NewSnapshot(records []MStockRecord, capturedAt time.Time) *MSnapshot {
	s := &MSnapshot{
		Records:    make(map[string]MStockRecord, len(records)),
		Order:      make([]string, 0, len(records)),
		CapturedAt: capturedAt,
	}
	for _, r := range records {
		if _, seen := s.Records[r.TradingCode]; !seen {
			s.Order = append(s.Order, r.TradingCode)
		}
		s.Records[r.TradingCode] = r
	}
	return s
}

// List returns the records in received order.
func (s *MSnapshot) List() []MStockRecord {
	out := make([]MStockRecord, 0, len(s.Order))
	for _, code := range s.Order {
		out = append(out, s.Records[code])
	}
	return out
}

// Len returns the number of records.
func (s *MSnapshot) Len() int {
	return len(s.Order)
}
