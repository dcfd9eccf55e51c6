// Package store persists entity records, the safety rating event log and
// sync job state.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
)

// ErrNotFound is returned when an entity or job does not exist.
var ErrNotFound = eris.New("store: not found")

// StoredEntity is an entity record as last persisted.
type StoredEntity struct {
	Record      model.EntityRecord `json:"record"`
	Fingerprint string             `json:"fingerprint"`
	SyncedAt    time.Time          `json:"synced_at"`
}

// Store is the persistence collaborator. Entity writes are whole-record
// replaces keyed by external ID; rating events are append-only.
type Store interface {
	// Entities
	UpsertEntity(ctx context.Context, rec *model.EntityRecord, syncedAt time.Time) error
	GetEntity(ctx context.Context, externalID string) (*StoredEntity, error)
	ListStaleEntities(ctx context.Context, syncedBefore time.Time, limit int) ([]string, error)

	// Safety rating history
	AppendRatingEvent(ctx context.Context, ev model.SafetyRatingEvent) error
	ListRatingEvents(ctx context.Context, entityID string) ([]model.SafetyRatingEvent, error)

	// Sync jobs
	CreateJob(ctx context.Context, job *model.SyncJob) error
	UpdateJob(ctx context.Context, job *model.SyncJob) error
	GetJob(ctx context.Context, id string) (*model.SyncJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.SyncJob, error)
	RecordFailure(ctx context.Context, f model.JobFailure) error
	ListFailures(ctx context.Context, jobID string) ([]model.JobFailure, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite", "":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// entityRow is the flattened column set written for every entity.
type entityRow struct {
	externalID      string
	legalName       string
	entityType      *string
	isCarrier       bool
	safetyRating    *string
	insuranceExpiry *time.Time
	dataSource      string
	qualityScore    int
	trustScore      int
	fingerprint     string
	record          []byte
	syncedAt        time.Time
}

func newEntityRow(rec *model.EntityRecord, syncedAt time.Time) (*entityRow, error) {
	if rec == nil || rec.ExternalID == "" {
		return nil, eris.New("store: entity record requires an external id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal entity record")
	}
	var rating *string
	if rec.SafetyRating != "" {
		r := string(rec.SafetyRating)
		rating = &r
	}
	return &entityRow{
		externalID:      rec.ExternalID,
		legalName:       rec.LegalName,
		entityType:      rec.EntityType,
		isCarrier:       rec.IsCarrierEntity,
		safetyRating:    rating,
		insuranceExpiry: rec.InsuranceExpiryDate,
		dataSource:      string(rec.DataSource),
		qualityScore:    rec.QualityScore,
		trustScore:      rec.TrustScore,
		fingerprint:     rec.Fingerprint(),
		record:          data,
		syncedAt:        syncedAt.UTC(),
	}, nil
}

func (r *entityRow) args() []any {
	return []any{
		r.externalID, r.legalName, r.entityType, r.isCarrier, r.safetyRating, r.insuranceExpiry,
		r.dataSource, r.qualityScore, r.trustScore, r.fingerprint, r.record, r.syncedAt,
	}
}

var entityColumns = []string{
	"external_id", "legal_name", "entity_type", "is_carrier_entity", "safety_rating", "insurance_expiry_date",
	"data_source", "quality_score", "trust_score", "fingerprint", "record", "synced_at",
}

func decodeEntity(data []byte, fingerprint string, syncedAt time.Time) (*StoredEntity, error) {
	var rec model.EntityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal entity record")
	}
	return &StoredEntity{Record: rec, Fingerprint: fingerprint, SyncedAt: syncedAt.UTC()}, nil
}

func marshalTargets(targets []string) ([]byte, error) {
	if targets == nil {
		targets = []string{}
	}
	data, err := json.Marshal(targets)
	return data, eris.Wrap(err, "store: marshal job targets")
}

func unmarshalTargets(data []byte) ([]string, error) {
	targets := []string{}
	if len(data) == 0 {
		return targets, nil
	}
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal job targets")
	}
	return targets, nil
}

func ratingPtr(s *string) *model.SafetyRating {
	if s == nil || *s == "" {
		return nil
	}
	r := model.SafetyRating(*s)
	return &r
}

func ratingString(r *model.SafetyRating) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
