package models

// -----------------------------------------------------------------------------
// Downstream payloads (WebSocket boundary)
// -----------------------------------------------------------------------------

// Stream message types.
const (
	MessageTypeFull   = "full"
	MessageTypeUpdate = "update"
)

// MStreamMessage carries a full snapshot or an incremental diff.
type MStreamMessage struct {
	Type      string         `json:"type"`
	Data      []MStockRecord `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MAuthStatus notifies subscribers about authentication state changes.
type MAuthStatus struct {
	Status    string `json:"status"` // "authenticated" or "error"
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// -----------------------------------------------------------------------------

// MConnectionStatus is sent to a subscriber right after it connects.
type MConnectionStatus struct {
	TokenPresent  bool  `json:"tokenPresent"`
	LastFetchTime int64 `json:"lastFetchTime"`
	TotalRecords  int   `json:"totalRecords"`
}
