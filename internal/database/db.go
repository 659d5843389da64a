package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	_ "modernc.org/sqlite"

	"github.com/jgoulah/amberbalance/pkg/models"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// StoredReport is a site's last known good report and its publish state
type StoredReport struct {
	models.Report
	Published bool
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Reporters for several sites write concurrently
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS site_reports (
		site_id TEXT PRIMARY KEY,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		position REAL NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_site_reports_published ON site_reports(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveReport replaces the stored report for the report's site. Only the
// latest report per site is kept.
func (db *DB) SaveReport(ctx context.Context, report models.Report) error {
	query := `
	INSERT INTO site_reports (site_id, range_start, range_end, position, payload, updated_at, published)
	VALUES (?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(site_id) DO UPDATE SET
		range_start = excluded.range_start,
		range_end = excluded.range_end,
		position = excluded.position,
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		published = 0
	`

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, query,
		report.SiteID,
		report.RangeStart,
		report.RangeEnd,
		report.Position(),
		string(payload),
		report.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	return nil
}

// OnReport stores every refreshed report
func (db *DB) OnReport(ctx context.Context, report models.Report) error {
	return db.SaveReport(ctx, report)
}

// GetReport retrieves the stored report for a site, or nil if none
func (db *DB) GetReport(ctx context.Context, siteID string) (*StoredReport, error) {
	query := `SELECT payload, published FROM site_reports WHERE site_id = ?`

	row := db.conn.QueryRowContext(ctx, query, siteID)
	stored, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying report: %w", err)
	}
	return stored, nil
}

// ListReports retrieves all stored reports ordered by site
func (db *DB) ListReports(ctx context.Context) ([]StoredReport, error) {
	return db.list(ctx, `SELECT payload, published FROM site_reports ORDER BY site_id`)
}

// ListUnpublishedReports retrieves reports not yet sent to Home Assistant
func (db *DB) ListUnpublishedReports(ctx context.Context) ([]StoredReport, error) {
	return db.list(ctx, `SELECT payload, published FROM site_reports WHERE published = 0 ORDER BY site_id`)
}

func (db *DB) list(ctx context.Context, query string) ([]StoredReport, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var results []StoredReport
	for rows.Next() {
		stored, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, *stored)
	}

	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*StoredReport, error) {
	var payload string
	var published int
	if err := row.Scan(&payload, &published); err != nil {
		return nil, err
	}

	var stored StoredReport
	if err := json.Unmarshal([]byte(payload), &stored.Report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	stored.Published = published != 0
	return &stored, nil
}

// MarkPublished marks a site's stored report as published
func (db *DB) MarkPublished(ctx context.Context, siteID string) error {
	query := `UPDATE site_reports SET published = 1 WHERE site_id = ?`
	_, err := db.conn.ExecContext(ctx, query, siteID)
	if err != nil {
		return fmt.Errorf("marking report as published: %w", err)
	}
	return nil
}
