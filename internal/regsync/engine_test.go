package regsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/pipeline"
	"github.com/sells-group/carrier-sync/internal/registry"
	"github.com/sells-group/carrier-sync/internal/resilience"
	"github.com/sells-group/carrier-sync/internal/store"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, dot string) (*pipeline.Outcome, error) {
	args := m.Called(ctx, dot)
	out, _ := args.Get(0).(*pipeline.Outcome)
	return out, args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "regsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{Concurrency: 3, DefaultLimit: 50, StaleAfterDays: 30}
}

func changedOutcome() *pipeline.Outcome {
	return &pipeline.Outcome{Record: &model.EntityRecord{}, Changed: true}
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%d", 1000+i)
	}
	return out
}

func TestRunJob_IsolatesItemFailures(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	targets := ids(10)
	proc.On("Process", mock.Anything, targets[4]).
		Return(nil, resilience.NewTransientError(errors.New("http 503"), 503))
	proc.On("Process", mock.Anything, mock.Anything).Return(changedOutcome(), nil)

	e := NewEngine(st, proc, nil, testSyncConfig())
	ctx := context.Background()

	job, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover, IDs: targets})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	done, err := e.RunJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 10, done.Processed)
	assert.Equal(t, 9, done.Updated)
	assert.Equal(t, 9, done.Changed)
	assert.Equal(t, 1, done.Failed)
	assert.False(t, done.Cancelled)
	assert.InDelta(t, 0.9, done.SuccessRate(), 1e-9)

	stored, err := e.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Failed)
	require.NotNil(t, stored.CompletedAt)

	failures, err := st.ListFailures(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, targets[4], failures[0].ExternalID)
	assert.Equal(t, resilience.ClassTransient, failures[0].ErrorClass)
}

func TestRunJob_PermanentFailureClass(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, "7").Return(nil, eris.Wrap(registry.ErrRecordNotFound, "fetch 7"))

	e := NewEngine(st, proc, nil, testSyncConfig())
	ctx := context.Background()
	job, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"7"}})
	require.NoError(t, err)

	done, err := e.RunJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 1, done.Failed)
	assert.Equal(t, 0, done.Updated)

	failures, err := st.ListFailures(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, resilience.ClassPermanent, failures[0].ErrorClass)
}

func TestRunJob_PreflightFailureFailsJob(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") })

	e := NewEngine(st, proc, down, testSyncConfig())
	ctx := context.Background()
	job, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"1", "2"}})
	require.NoError(t, err)

	done, err := e.RunJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, done.Status)
	assert.Contains(t, done.Error, "registry unreachable")
	assert.Equal(t, 0, done.Processed)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
}

func TestRunJob_CancelStopsAtItemBoundary(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	cfg := testSyncConfig()
	cfg.Concurrency = 1

	e := NewEngine(st, proc, nil, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	targets := ids(5)
	proc.On("Process", mock.Anything, targets[0]).
		Run(func(args mock.Arguments) {
			cancel()
			// The item's own context stays live so it can finish.
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(changedOutcome(), nil)

	job, err := e.Submit(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: targets})
	require.NoError(t, err)

	done, err := e.RunJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.True(t, done.Cancelled)
	assert.Equal(t, 1, done.Processed)
	assert.Equal(t, 1, done.Updated)
	proc.AssertNumberOfCalls(t, "Process", 1)
}

func TestStartJob_RunsInBackground(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything).Return(changedOutcome(), nil)
	e := NewEngine(st, proc, pingFunc(func(context.Context) error { return nil }), testSyncConfig())

	id, err := e.StartJob(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"1", "2", "3"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	e.Wait()

	job, err := e.GetJobStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.Updated)

	jobs, err := e.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)

	assert.ErrorIs(t, e.Cancel(id), ErrJobNotRunning)
}

func TestRunJob_EmptyTargetsCompletes(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	e := NewEngine(st, proc, nil, testSyncConfig())

	job, err := e.Submit(context.Background(), JobRequest{JobType: model.JobTypeStaleRefresh})
	require.NoError(t, err)
	assert.Empty(t, job.Targets)

	done, err := e.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	assert.Equal(t, 0, done.Processed)
	assert.Zero(t, done.SuccessRate())
}

func TestSubmit_StaleSelection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for id, age := range map[string]int{"1": 90, "2": 45, "3": 5} {
		rec := &model.EntityRecord{ExternalID: id, LegalName: "X", DataSource: model.DataSourceExternalRegistry}
		require.NoError(t, st.UpsertEntity(ctx, rec, now.AddDate(0, 0, -age)))
	}

	e := NewEngine(st, &mockProcessor{}, nil, testSyncConfig(), WithClock(func() time.Time { return now }))

	job, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeStaleRefresh})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, job.Targets)

	job, err = e.Submit(ctx, JobRequest{JobType: model.JobTypeStaleRefresh, StaleDays: 60, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, job.Targets)

	job, err = e.Submit(ctx, JobRequest{JobType: model.JobTypeStaleRefresh, StaleDays: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, job.Targets)
}

func TestSubmit_DiscoverValidation(t *testing.T) {
	st := newTestStore(t)
	e := NewEngine(st, &mockProcessor{}, nil, testSyncConfig())
	ctx := context.Background()

	_, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"1", "abc"}})
	require.Error(t, err)
	assert.True(t, resilience.IsValidation(err))

	_, err = e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover})
	require.Error(t, err)

	_, err = e.Submit(ctx, JobRequest{JobType: "reindex"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")

	job, err := e.Submit(ctx, JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"007", "7", "8", "9"}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, job.Targets)

	jobs, err := st.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "rejected requests create no job")
}

func TestCancel_UnknownJob(t *testing.T) {
	e := NewEngine(newTestStore(t), &mockProcessor{}, nil, testSyncConfig())
	assert.ErrorIs(t, e.Cancel("nope"), ErrJobNotRunning)
}

func TestJobHook_RunsOnTerminalState(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything).Return(changedOutcome(), nil)

	var seen []model.JobStatus
	hook := WithJobHook(func(_ context.Context, job *model.SyncJob) {
		seen = append(seen, job.Status)
	})
	e := NewEngine(st, proc, nil, testSyncConfig(), hook)

	job, err := e.Submit(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"1"}})
	require.NoError(t, err)
	_, err = e.RunJob(context.Background(), job)
	require.NoError(t, err)

	down := NewEngine(st, proc, pingFunc(func(context.Context) error { return errors.New("down") }), testSyncConfig(), hook)
	job, err = down.Submit(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: []string{"2"}})
	require.NoError(t, err)
	_, err = down.RunJob(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}, seen)
}

func TestCancelAll_StopsBackgroundJobs(t *testing.T) {
	st := newTestStore(t)
	proc := &mockProcessor{}
	cfg := testSyncConfig()
	cfg.Concurrency = 1

	started := make(chan struct{})
	release := make(chan struct{})
	proc.On("Process", mock.Anything, "1000").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(changedOutcome(), nil)

	e := NewEngine(st, proc, nil, cfg)
	assert.Zero(t, e.CancelAll())

	id, err := e.StartJob(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: ids(4)})
	require.NoError(t, err)

	<-started
	assert.Equal(t, 1, e.CancelAll())
	close(release)
	e.Wait()

	job, err := e.GetJobStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.True(t, job.Cancelled)
	assert.Equal(t, 1, job.Processed)
	proc.AssertNumberOfCalls(t, "Process", 1)
}

// recordingStore captures the Processed count of every job update.
type recordingStore struct {
	store.Store
	mu        sync.Mutex
	processed []int
}

func (r *recordingStore) UpdateJob(ctx context.Context, job *model.SyncJob) error {
	r.mu.Lock()
	r.processed = append(r.processed, job.Processed)
	r.mu.Unlock()
	return r.Store.UpdateJob(ctx, job)
}

func TestRunJob_ProgressNeverGoesBackwards(t *testing.T) {
	st := &recordingStore{Store: newTestStore(t)}
	proc := &mockProcessor{}
	proc.On("Process", mock.Anything, mock.Anything).Return(changedOutcome(), nil)
	cfg := testSyncConfig()
	cfg.Concurrency = 8
	cfg.DefaultLimit = 200

	e := NewEngine(st, proc, nil, cfg)
	job, err := e.Submit(context.Background(), JobRequest{JobType: model.JobTypeDiscover, IDs: ids(120)})
	require.NoError(t, err)

	done, err := e.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 120, done.Processed)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.NotEmpty(t, st.processed)
	for i := 1; i < len(st.processed); i++ {
		assert.GreaterOrEqual(t, st.processed[i], st.processed[i-1], "update %d went backwards: %v", i, st.processed)
	}
	assert.Equal(t, 120, st.processed[len(st.processed)-1])
}

func TestProgressWriter_DropsStaleSnapshots(t *testing.T) {
	st := &recordingStore{Store: newTestStore(t)}
	job := &model.SyncJob{ID: "p1", JobType: model.JobTypeDiscover, Status: model.JobStatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateJob(context.Background(), job))

	pw := &progressWriter{store: st, log: zap.NewNop()}
	at := func(n int) func() model.SyncJob {
		return func() model.SyncJob {
			j := *job
			j.Processed = n
			return j
		}
	}
	pw.write(context.Background(), at(20))
	pw.write(context.Background(), at(10))
	pw.write(context.Background(), at(20))
	pw.write(context.Background(), at(30))

	assert.Equal(t, []int{20, 30}, st.processed)
}
