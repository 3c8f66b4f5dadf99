package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stock-streamer/src/logger"
	"stock-streamer/src/models"
)

// SQLite batch constants
const (
	sqliteMaxVars   = 32000
	paramsPerRow    = 6
	sqliteBatchSize = sqliteMaxVars / paramsPerRow
)

// -----------------------------------------------------------------------------

// SQLiteCache persists the most recent snapshot in a local SQLite file.
type SQLiteCache struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteCache(cfg *models.MConfig, log *logger.Logger) (*SQLiteCache, error) {
	return &SQLiteCache{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS stock_snapshot (
			trading_code TEXT PRIMARY KEY,
			last_price REAL,
			price_change REAL,
			change_percent REAL,
			position INTEGER,
			captured_at INTEGER
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create stock_snapshot: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// SaveSnapshot replaces the cached snapshot wholesale inside one
// transaction, so a restored snapshot is always internally consistent.
func (d *SQLiteCache) SaveSnapshot(snapshot *models.MSnapshot) error {
	if snapshot == nil {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM stock_snapshot"); err != nil {
		return fmt.Errorf("failed to clear stock_snapshot: %w", err)
	}

	records := snapshot.List()
	capturedAt := snapshot.CapturedAt.Unix()

	for start := 0; start < len(records); start += sqliteBatchSize {
		end := start + sqliteBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*paramsPerRow)
		for i, r := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
			args = append(args, r.TradingCode, r.LastPrice, r.Change, r.ChangePercent, start+i, capturedAt)
		}

		query := "INSERT INTO stock_snapshot (trading_code, last_price, price_change, change_percent, position, captured_at) VALUES " +
			strings.Join(placeholders, ", ")
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert snapshot batch: %w", err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

// LoadSnapshot restores the cached snapshot, or nil when none exists.
func (d *SQLiteCache) LoadSnapshot() (*models.MSnapshot, error) {
	rows, err := d.DB.Query(`
		SELECT trading_code, last_price, price_change, change_percent, captured_at
		FROM stock_snapshot ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MStockRecord
	var capturedAt int64

	for rows.Next() {
		var r models.MStockRecord
		if err := rows.Scan(&r.TradingCode, &r.LastPrice, &r.Change, &r.ChangePercent, &capturedAt); err != nil {
			return nil, err
		}
		r.DeriveIndicator()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	return models.NewSnapshot(records, time.Unix(capturedAt, 0)), nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
