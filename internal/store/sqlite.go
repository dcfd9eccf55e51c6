package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/carrier-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	external_id           TEXT PRIMARY KEY,
	legal_name            TEXT NOT NULL,
	entity_type           TEXT,
	is_carrier_entity     INTEGER NOT NULL DEFAULT 1,
	safety_rating         TEXT,
	insurance_expiry_date DATETIME,
	data_source           TEXT NOT NULL,
	quality_score         INTEGER NOT NULL DEFAULT 0,
	trust_score           INTEGER NOT NULL DEFAULT 0,
	fingerprint           TEXT NOT NULL,
	record                TEXT NOT NULL,
	synced_at             DATETIME NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS safety_rating_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	old_rating  TEXT,
	new_rating  TEXT NOT NULL,
	change_date DATETIME NOT NULL,
	source      TEXT NOT NULL,
	UNIQUE (entity_id, change_date, new_rating)
);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id           TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	targets      TEXT NOT NULL DEFAULT '[]',
	processed    INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	changed      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	cancelled    INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS sync_job_failures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id      TEXT NOT NULL REFERENCES sync_jobs(id),
	external_id TEXT NOT NULL,
	error_class TEXT NOT NULL,
	error       TEXT NOT NULL,
	failed_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_synced_at ON entities(synced_at);
CREATE INDEX IF NOT EXISTS idx_rating_events_entity ON safety_rating_events(entity_id, change_date);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_created_at ON sync_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_sync_job_failures_job ON sync_job_failures(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, rec *model.EntityRecord, syncedAt time.Time) error {
	row, err := newEntityRow(rec, syncedAt)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO entities (`+strings.Join(entityColumns, ", ")+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET
	legal_name = excluded.legal_name,
	entity_type = excluded.entity_type,
	is_carrier_entity = excluded.is_carrier_entity,
	safety_rating = excluded.safety_rating,
	insurance_expiry_date = excluded.insurance_expiry_date,
	data_source = excluded.data_source,
	quality_score = excluded.quality_score,
	trust_score = excluded.trust_score,
	fingerprint = excluded.fingerprint,
	record = excluded.record,
	synced_at = excluded.synced_at`,
		row.args()...,
	)
	return eris.Wrapf(err, "sqlite: upsert entity %s", rec.ExternalID)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, externalID string) (*StoredEntity, error) {
	var (
		data        string
		fingerprint string
		syncedAt    time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record, fingerprint, synced_at FROM entities WHERE external_id = ?`, externalID,
	).Scan(&data, &fingerprint, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "entity %s", externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", externalID)
	}
	return decodeEntity([]byte(data), fingerprint, syncedAt)
}

func (s *SQLiteStore) ListStaleEntities(ctx context.Context, syncedBefore time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id FROM entities WHERE synced_at < ? ORDER BY synced_at ASC, external_id ASC LIMIT ?`,
		syncedBefore.UTC(), defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale entities")
	}
	defer rows.Close() //nolint:errcheck

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stale entity")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate stale entities")
}

func (s *SQLiteStore) AppendRatingEvent(ctx context.Context, ev model.SafetyRatingEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO safety_rating_events (entity_id, old_rating, new_rating, change_date, source)
VALUES (?, ?, ?, ?, ?) ON CONFLICT (entity_id, change_date, new_rating) DO NOTHING`,
		ev.EntityID, ratingString(ev.OldRating), string(ev.NewRating), ev.ChangeDate.UTC(), string(ev.Source),
	)
	return eris.Wrapf(err, "sqlite: append rating event for %s", ev.EntityID)
}

func (s *SQLiteStore) ListRatingEvents(ctx context.Context, entityID string) ([]model.SafetyRatingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, old_rating, new_rating, change_date, source FROM safety_rating_events
WHERE entity_id = ? ORDER BY change_date ASC, id ASC`, entityID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list rating events for %s", entityID)
	}
	defer rows.Close() //nolint:errcheck

	events := []model.SafetyRatingEvent{}
	for rows.Next() {
		var (
			ev     model.SafetyRatingEvent
			old    sql.NullString
			newR   string
			source string
		)
		if err := rows.Scan(&ev.EntityID, &old, &newR, &ev.ChangeDate, &source); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rating event")
		}
		if old.Valid {
			ev.OldRating = ratingPtr(&old.String)
		}
		ev.NewRating = model.SafetyRating(newR)
		ev.Source = model.DataSource(source)
		ev.ChangeDate = ev.ChangeDate.UTC()
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate rating events")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.SyncJob) error {
	targets, err := marshalTargets(job.Targets)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_jobs (id, job_type, status, targets, processed, updated, changed, failed, cancelled, error, created_at, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.JobType), string(job.Status), string(targets),
		job.Processed, job.Updated, job.Changed, job.Failed, job.Cancelled, job.Error,
		job.CreatedAt.UTC(), utcPtr(job.StartedAt), utcPtr(job.CompletedAt),
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.SyncJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, processed = ?, updated = ?, changed = ?, failed = ?, cancelled = ?,
error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		string(job.Status), job.Processed, job.Updated, job.Changed, job.Failed, job.Cancelled,
		job.Error, utcPtr(job.StartedAt), utcPtr(job.CompletedAt), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

const sqliteJobColumns = `id, job_type, status, targets, processed, updated, changed, failed, cancelled, error, created_at, started_at, completed_at`

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.SyncJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM sync_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]model.SyncJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM sync_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	jobs := []model.SyncJob{}
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, f model.JobFailure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_job_failures (job_id, external_id, error_class, error, failed_at) VALUES (?, ?, ?, ?, ?)`,
		f.JobID, f.ExternalID, f.ErrorClass, f.Error, f.FailedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record failure for %s", f.ExternalID)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, jobID string) ([]model.JobFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, external_id, error_class, error, failed_at FROM sync_job_failures WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list failures for %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	failures := []model.JobFailure{}
	for rows.Next() {
		var f model.JobFailure
		if err := rows.Scan(&f.JobID, &f.ExternalID, &f.ErrorClass, &f.Error, &f.FailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		f.FailedAt = f.FailedAt.UTC()
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "sqlite: iterate failures")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row scannable) (*model.SyncJob, error) {
	var (
		job       model.SyncJob
		jobType   string
		status    string
		targets   string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(&job.ID, &jobType, &status, &targets, &job.Processed, &job.Updated, &job.Changed,
		&job.Failed, &job.Cancelled, &job.Error, &job.CreatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}
	job.JobType = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	if job.Targets, err = unmarshalTargets([]byte(targets)); err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time.UTC()
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", kind, id)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
