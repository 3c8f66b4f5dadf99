package interfaces

import "stock-streamer/src/models"

// -----------------------------------------------------------------------------
// ISnapshotCache defines the contract for snapshot persistence. Only the
// most recent snapshot is ever stored; each save replaces the previous
// contents wholesale.
// -----------------------------------------------------------------------------

type ISnapshotCache interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the schema.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSnapshot replaces the cached snapshot with the given one.
	SaveSnapshot(snapshot *models.MSnapshot) error

	// -----------------------------------------------------------------------------

	// LoadSnapshot returns the cached snapshot, or nil when none exists.
	LoadSnapshot() (*models.MSnapshot, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
