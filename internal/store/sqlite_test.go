package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord(id string) *model.EntityRecord {
	expiry := time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC)
	return &model.EntityRecord{
		ExternalID:              id,
		LegalName:               "ACME TRUCKING LLC",
		NameSource:              model.NameSourceField,
		EntityType:              model.StringPtr("CARRIER"),
		PhysicalAddress:         model.StringPtr("100 MAIN ST DALLAS, TX 75201"),
		SafetyRating:            model.RatingSatisfactory,
		InsuranceExpiryDate:     &expiry,
		OperationClassification: []string{"Auth. For Hire"},
		CarrierOperation:        []string{"Interstate"},
		EquipmentTypes:          []string{"General Freight"},
		IsCarrierEntity:         true,
		QualityScore:            82,
		TrustScore:              70,
		DataSource:              model.DataSourceExternalRegistry,
	}
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_UpsertAndGetEntity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	syncedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	rec := sampleRecord("1234567")
	require.NoError(t, st.UpsertEntity(ctx, rec, syncedAt))

	got, err := st.GetEntity(ctx, "1234567")
	require.NoError(t, err)
	assert.Equal(t, rec.Fingerprint(), got.Fingerprint)
	assert.Equal(t, rec.Fingerprint(), got.Record.Fingerprint(), "round trip preserves the record")
	assert.True(t, syncedAt.Equal(got.SyncedAt))
	assert.Equal(t, "ACME TRUCKING LLC", got.Record.LegalName)
}

func TestSQLite_UpsertReplacesWholeRecord(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := sampleRecord("1")
	require.NoError(t, st.UpsertEntity(ctx, rec, now))

	replaced := sampleRecord("1")
	replaced.PhysicalAddress = nil
	replaced.LegalName = "ACME LOGISTICS INC"
	require.NoError(t, st.UpsertEntity(ctx, replaced, now.Add(time.Hour)))

	got, err := st.GetEntity(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "ACME LOGISTICS INC", got.Record.LegalName)
	assert.Nil(t, got.Record.PhysicalAddress)
}

func TestSQLite_UpsertRequiresID(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpsertEntity(context.Background(), &model.EntityRecord{}, time.Now())
	require.Error(t, err)
}

func TestSQLite_GetEntity_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetEntity(context.Background(), "999")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListStaleEntities(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertEntity(ctx, sampleRecord("3"), base.Add(48*time.Hour)))
	require.NoError(t, st.UpsertEntity(ctx, sampleRecord("1"), base))
	require.NoError(t, st.UpsertEntity(ctx, sampleRecord("2"), base.Add(24*time.Hour)))
	require.NoError(t, st.UpsertEntity(ctx, sampleRecord("4"), base.Add(30*24*time.Hour)))

	ids, err := st.ListStaleEntities(ctx, base.Add(72*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids, "oldest first")

	ids, err = st.ListStaleEntities(ctx, base.Add(72*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	ids, err = st.ListStaleEntities(ctx, base, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLite_RatingEventsAppendOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sat := model.RatingSatisfactory

	first := model.SafetyRatingEvent{EntityID: "1", NewRating: model.RatingSatisfactory, ChangeDate: t0, Source: model.DataSourceExternalRegistry}
	second := model.SafetyRatingEvent{EntityID: "1", OldRating: &sat, NewRating: model.RatingConditional, ChangeDate: t0.AddDate(0, 2, 0), Source: model.DataSourceExternalRegistry}

	require.NoError(t, st.AppendRatingEvent(ctx, second))
	require.NoError(t, st.AppendRatingEvent(ctx, first))
	require.NoError(t, st.AppendRatingEvent(ctx, first), "replaying an event is a no-op")

	events, err := st.ListRatingEvents(ctx, "1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].OldRating)
	assert.Equal(t, model.RatingSatisfactory, events[0].NewRating)
	require.NotNil(t, events[1].OldRating)
	assert.Equal(t, model.RatingSatisfactory, *events[1].OldRating)
	assert.Equal(t, model.RatingConditional, events[1].NewRating)
	assert.True(t, events[0].ChangeDate.Before(events[1].ChangeDate))

	none, err := st.ListRatingEvents(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	job := &model.SyncJob{
		ID:        "job-1",
		JobType:   model.JobTypeDiscover,
		Status:    model.JobStatusPending,
		Targets:   []string{"1", "2"},
		CreatedAt: created,
	}
	require.NoError(t, st.CreateJob(ctx, job))

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, []string{"1", "2"}, got.Targets)
	assert.Nil(t, got.StartedAt)

	require.NoError(t, job.Start(created.Add(time.Second)))
	job.Processed, job.Updated, job.Failed = 2, 1, 1
	require.NoError(t, job.Complete(created.Add(time.Minute)))
	require.NoError(t, st.UpdateJob(ctx, job))

	got, err = st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, 1, got.Updated)
	assert.Equal(t, 1, got.Failed)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, created.Add(time.Minute).Equal(*got.CompletedAt))
}

func TestSQLite_UpdateJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateJob(context.Background(), &model.SyncJob{ID: "missing", Status: model.JobStatusRunning})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListJobs_NewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateJob(ctx, &model.SyncJob{
			ID: id, JobType: model.JobTypeStaleRefresh, Status: model.JobStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	jobs, err := st.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)
	assert.Empty(t, jobs[0].Targets)
}

func TestSQLite_Failures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateJob(ctx, &model.SyncJob{
		ID: "job-1", JobType: model.JobTypeDiscover, Status: model.JobStatusRunning, CreatedAt: time.Now(),
	}))

	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.RecordFailure(ctx, model.JobFailure{
		JobID: "job-1", ExternalID: "42", ErrorClass: "transient", Error: "http 503", FailedAt: at,
	}))
	require.NoError(t, st.RecordFailure(ctx, model.JobFailure{
		JobID: "job-1", ExternalID: "43", ErrorClass: "permanent", Error: "record not found", FailedAt: at,
	}))

	failures, err := st.ListFailures(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "42", failures[0].ExternalID)
	assert.Equal(t, "transient", failures[0].ErrorClass)
	assert.Equal(t, "permanent", failures[1].ErrorClass)
}

func TestOpen(t *testing.T) {
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
