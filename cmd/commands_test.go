package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/store"
)

func TestWriteOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	job := &model.SyncJob{ID: "j1", JobType: model.JobTypeDiscover, Status: model.JobStatusCompleted, Processed: 2}

	require.NoError(t, writeOutput(&buf, "json", job))
	assert.Contains(t, buf.String(), `"job_type": "discover"`)
	assert.Contains(t, buf.String(), `"processed": 2`)
}

func TestWriteOutput_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	job := &model.SyncJob{ID: "j1", JobType: model.JobTypeStaleRefresh, Status: model.JobStatusRunning}

	require.NoError(t, writeOutput(&buf, "yaml", job))
	assert.Contains(t, buf.String(), "job_type: stale_refresh")
	assert.Contains(t, buf.String(), "status: running")
}

func TestWriteOutput_UnknownFormat(t *testing.T) {
	err := writeOutput(&bytes.Buffer{}, "xml", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func resetDiscoverFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		syncIDs, syncFile, syncColumn, syncSheet = "", "", "", ""
	})
}

func TestDiscoverIDs_FromList(t *testing.T) {
	resetDiscoverFlags(t)
	syncIDs = "0012345, 67890 abc 12345"

	ids, err := discoverIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"12345", "67890"}, ids)
}

func TestDiscoverIDs_FromFile(t *testing.T) {
	resetDiscoverFlags(t)
	path := filepath.Join(t.TempDir(), "ids.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,dot_number\nAcme,111\nBeta,222\n"), 0o600))
	syncFile = path

	ids, err := discoverIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}

func TestDiscoverIDs_Errors(t *testing.T) {
	resetDiscoverFlags(t)

	_, err := discoverIDs(context.Background())
	assert.ErrorContains(t, err, "required")

	syncIDs, syncFile = "1", "x.csv"
	_, err = discoverIDs(context.Background())
	assert.ErrorContains(t, err, "not both")

	syncIDs, syncFile = "abc,-", ""
	_, err = discoverIDs(context.Background())
	assert.ErrorContains(t, err, "no valid identifiers")
}

func withSQLiteConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cmd.db")
	prev := cfg
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", SQLitePath: path}}
	t.Cleanup(func() { cfg = prev })
	return path
}

func TestMigrateAndJobsList(t *testing.T) {
	path := withSQLiteConfig(t)
	ctx := context.Background()

	migrateCmd.SetContext(ctx)
	require.NoError(t, migrateCmd.RunE(migrateCmd, nil))

	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	job := &model.SyncJob{
		ID:        "job-1",
		JobType:   model.JobTypeDiscover,
		Status:    model.JobStatusPending,
		Targets:   []string{"1"},
		CreatedAt: time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	jobsListCmd.SetContext(ctx)
	jobsListCmd.SetOut(&buf)
	require.NoError(t, jobsListCmd.RunE(jobsListCmd, nil))
	assert.Contains(t, buf.String(), "job-1")
	assert.Contains(t, buf.String(), "discover")
	assert.Contains(t, buf.String(), "2026-10-01 09:30:00")

	buf.Reset()
	jobsID = "job-1"
	t.Cleanup(func() { jobsID = "" })
	jobsStatusCmd.SetContext(ctx)
	jobsStatusCmd.SetOut(&buf)
	require.NoError(t, jobsStatusCmd.RunE(jobsStatusCmd, nil))
	assert.Contains(t, buf.String(), `"id": "job-1"`)
	assert.Contains(t, buf.String(), `"success_rate": 0`)
}
