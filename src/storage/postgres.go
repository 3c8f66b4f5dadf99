package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"stock-streamer/src/logger"
	"stock-streamer/src/models"
)

// -----------------------------------------------------------------------------

// PostgresCache persists the most recent snapshot in Postgres, for
// deployments where several instances share one warm-restart baseline.
type PostgresCache struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresCache(cfg *models.MConfig, log *logger.Logger) (*PostgresCache, error) {
	return &PostgresCache{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	query := `
		CREATE TABLE IF NOT EXISTS stock_snapshot (
			trading_code TEXT PRIMARY KEY,
			last_price DOUBLE PRECISION,
			price_change DOUBLE PRECISION,
			change_percent DOUBLE PRECISION,
			position INTEGER,
			captured_at BIGINT
		);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create stock_snapshot: %w", err)
	}

	d.Logger.Info("PostgresCache initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) SaveSnapshot(snapshot *models.MSnapshot) error {
	if snapshot == nil {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("TRUNCATE stock_snapshot"); err != nil {
		return fmt.Errorf("failed to clear stock_snapshot: %w", err)
	}

	records := snapshot.List()
	capturedAt := snapshot.CapturedAt.Unix()

	placeholders := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*paramsPerRow)
	for i, r := range records {
		base := i * paramsPerRow
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, r.TradingCode, r.LastPrice, r.Change, r.ChangePercent, i, capturedAt)
	}

	if len(placeholders) > 0 {
		query := "INSERT INTO stock_snapshot (trading_code, last_price, price_change, change_percent, position, captured_at) VALUES " +
			strings.Join(placeholders, ", ")
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) LoadSnapshot() (*models.MSnapshot, error) {
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

func (d *PostgresCache) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
