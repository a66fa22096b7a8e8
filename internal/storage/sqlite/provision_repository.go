package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cinemetrics/datasetd/internal/storage"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS provisions (
	dataset_id  TEXT PRIMARY KEY,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	bytes       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	instance_id TEXT NOT NULL DEFAULT '',
	checked_at  TEXT NOT NULL
);`

// InitDB opens the sqlite database and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// ProvisionRepository persists the last provisioning outcome per dataset.
type ProvisionRepository struct {
	db *sql.DB
}

func NewProvisionRepository(db *sql.DB) *ProvisionRepository {
	return &ProvisionRepository{db: db}
}

// RecordResult upserts the latest outcome for a dataset.
func (r *ProvisionRepository) RecordResult(rec storage.ProvisionRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO provisions (dataset_id, outcome, reason, bytes, duration_ms, instance_id, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			outcome = excluded.outcome,
			reason = excluded.reason,
			bytes = excluded.bytes,
			duration_ms = excluded.duration_ms,
			instance_id = excluded.instance_id,
			checked_at = excluded.checked_at
	`, rec.DatasetID, rec.Outcome, rec.Reason, rec.Bytes, rec.DurationMS, rec.InstanceID,
		rec.CheckedAt.UTC().Format(time.RFC3339))

	return err
}

// LastResults returns the last recorded outcome for every known dataset.
func (r *ProvisionRepository) LastResults() ([]storage.ProvisionRecord, error) {
	rows, err := r.db.Query(`
		SELECT dataset_id, outcome, reason, bytes, duration_ms, instance_id, checked_at
		FROM provisions ORDER BY dataset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.ProvisionRecord

	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}

		records = append(records, *rec)
	}

	return records, rows.Err()
}

// LastResult returns the last recorded outcome for one dataset, or nil if the
// dataset has never been checked.
func (r *ProvisionRepository) LastResult(datasetID string) (*storage.ProvisionRecord, error) {
	row := r.db.QueryRow(`
		SELECT dataset_id, outcome, reason, bytes, duration_ms, instance_id, checked_at
		FROM provisions WHERE dataset_id = ?`, datasetID)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return rec, err
}

func scanRecord(scan func(dest ...any) error) (*storage.ProvisionRecord, error) {
	var rec storage.ProvisionRecord

	var checkedAt string

	if err := scan(&rec.DatasetID, &rec.Outcome, &rec.Reason, &rec.Bytes,
		&rec.DurationMS, &rec.InstanceID, &checkedAt); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339, checkedAt)
	if err != nil {
		// Old rows with unparsable timestamps keep the zero time instead of
		// failing the whole read.
		ts = time.Time{}
	}

	rec.CheckedAt = ts

	return &rec, nil
}
