package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/db"
	"github.com/sells-group/carrier-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	upsertEntitySQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "entities",
		Columns:      entityColumns,
		ConflictKeys: []string{"external_id"},
	})
	appendEventSQL = mustUpsertSQL(db.UpsertConfig{
		Table:        "safety_rating_events",
		Columns:      []string{"entity_id", "old_rating", "new_rating", "change_date", "source"},
		ConflictKeys: []string{"entity_id", "change_date", "new_rating"},
		DoNothing:    true,
	})
)

func mustUpsertSQL(cfg db.UpsertConfig) string {
	sql, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return sql
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifetime.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	external_id           TEXT PRIMARY KEY,
	legal_name            TEXT NOT NULL,
	entity_type           TEXT,
	is_carrier_entity     BOOLEAN NOT NULL DEFAULT true,
	safety_rating         TEXT,
	insurance_expiry_date TIMESTAMPTZ,
	data_source           TEXT NOT NULL,
	quality_score         INTEGER NOT NULL DEFAULT 0,
	trust_score           INTEGER NOT NULL DEFAULT 0,
	fingerprint           TEXT NOT NULL,
	record                JSONB NOT NULL,
	synced_at             TIMESTAMPTZ NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_synced_at ON entities(synced_at);
CREATE INDEX IF NOT EXISTS idx_entities_insurance_expiry ON entities(insurance_expiry_date);

CREATE TABLE IF NOT EXISTS safety_rating_events (
	id          BIGSERIAL PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	old_rating  TEXT,
	new_rating  TEXT NOT NULL,
	change_date TIMESTAMPTZ NOT NULL,
	source      TEXT NOT NULL,
	UNIQUE (entity_id, change_date, new_rating)
);

CREATE INDEX IF NOT EXISTS idx_rating_events_entity ON safety_rating_events(entity_id, change_date);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id           TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	targets      JSONB NOT NULL DEFAULT '[]',
	processed    INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	changed      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	cancelled    BOOLEAN NOT NULL DEFAULT false,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sync_jobs_created_at ON sync_jobs(created_at DESC);

CREATE TABLE IF NOT EXISTS sync_job_failures (
	id          BIGSERIAL PRIMARY KEY,
	job_id      TEXT NOT NULL REFERENCES sync_jobs(id),
	external_id TEXT NOT NULL,
	error_class TEXT NOT NULL,
	error       TEXT NOT NULL,
	failed_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_job_failures_job ON sync_job_failures(job_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, rec *model.EntityRecord, syncedAt time.Time) error {
	row, err := newEntityRow(rec, syncedAt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertEntitySQL, row.args()...)
	return eris.Wrapf(err, "postgres: upsert entity %s", rec.ExternalID)
}

func (s *PostgresStore) GetEntity(ctx context.Context, externalID string) (*StoredEntity, error) {
	var (
		data        []byte
		fingerprint string
		syncedAt    time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT record, fingerprint, synced_at FROM entities WHERE external_id = $1`, externalID,
	).Scan(&data, &fingerprint, &syncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "entity %s", externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", externalID)
	}
	return decodeEntity(data, fingerprint, syncedAt)
}

func (s *PostgresStore) ListStaleEntities(ctx context.Context, syncedBefore time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT external_id FROM entities WHERE synced_at < $1 ORDER BY synced_at ASC, external_id ASC LIMIT $2`,
		syncedBefore.UTC(), defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale entities")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stale entity")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate stale entities")
}

func (s *PostgresStore) AppendRatingEvent(ctx context.Context, ev model.SafetyRatingEvent) error {
	_, err := s.pool.Exec(ctx, appendEventSQL,
		ev.EntityID, ratingString(ev.OldRating), string(ev.NewRating), ev.ChangeDate.UTC(), string(ev.Source),
	)
	return eris.Wrapf(err, "postgres: append rating event for %s", ev.EntityID)
}

func (s *PostgresStore) ListRatingEvents(ctx context.Context, entityID string) ([]model.SafetyRatingEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_id, old_rating, new_rating, change_date, source FROM safety_rating_events
WHERE entity_id = $1 ORDER BY change_date ASC, id ASC`, entityID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list rating events for %s", entityID)
	}
	defer rows.Close()

	events := []model.SafetyRatingEvent{}
	for rows.Next() {
		var (
			ev     model.SafetyRatingEvent
			old    *string
			newR   string
			source string
		)
		if err := rows.Scan(&ev.EntityID, &old, &newR, &ev.ChangeDate, &source); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rating event")
		}
		ev.OldRating = ratingPtr(old)
		ev.NewRating = model.SafetyRating(newR)
		ev.Source = model.DataSource(source)
		ev.ChangeDate = ev.ChangeDate.UTC()
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate rating events")
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.SyncJob) error {
	targets, err := marshalTargets(job.Targets)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_jobs (id, job_type, status, targets, processed, updated, changed, failed, cancelled, error, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, string(job.JobType), string(job.Status), targets,
		job.Processed, job.Updated, job.Changed, job.Failed, job.Cancelled, job.Error,
		job.CreatedAt.UTC(), job.StartedAt, job.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.ID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.SyncJob) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_jobs SET status = $1, processed = $2, updated = $3, changed = $4, failed = $5, cancelled = $6,
error = $7, started_at = $8, completed_at = $9 WHERE id = $10`,
		string(job.Status), job.Processed, job.Updated, job.Changed, job.Failed, job.Cancelled,
		job.Error, job.StartedAt, job.CompletedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", job.ID)
	}
	return nil
}

const postgresJobColumns = `id, job_type, status, targets, processed, updated, changed, failed, cancelled, error, created_at, started_at, completed_at`

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.SyncJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresJobColumns+` FROM sync_jobs WHERE id = $1`, id)
	job, err := scanPostgresJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.SyncJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresJobColumns+` FROM sync_jobs ORDER BY created_at DESC, id DESC LIMIT $1`, defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	jobs := []model.SyncJob{}
	for rows.Next() {
		job, err := scanPostgresJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) RecordFailure(ctx context.Context, f model.JobFailure) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_job_failures (job_id, external_id, error_class, error, failed_at) VALUES ($1, $2, $3, $4, $5)`,
		f.JobID, f.ExternalID, f.ErrorClass, f.Error, f.FailedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record failure for %s", f.ExternalID)
}

func (s *PostgresStore) ListFailures(ctx context.Context, jobID string) ([]model.JobFailure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, external_id, error_class, error, failed_at FROM sync_job_failures WHERE job_id = $1 ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list failures for %s", jobID)
	}
	defer rows.Close()

	failures := []model.JobFailure{}
	for rows.Next() {
		var f model.JobFailure
		if err := rows.Scan(&f.JobID, &f.ExternalID, &f.ErrorClass, &f.Error, &f.FailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "postgres: iterate failures")
}

func scanPostgresJob(row pgx.Row) (*model.SyncJob, error) {
	var (
		job     model.SyncJob
		jobType string
		status  string
		targets []byte
	)
	err := row.Scan(&job.ID, &jobType, &status, &targets, &job.Processed, &job.Updated, &job.Changed,
		&job.Failed, &job.Cancelled, &job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	job.JobType = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	if job.Targets, err = unmarshalTargets(targets); err != nil {
		return nil, err
	}
	return &job, nil
}
