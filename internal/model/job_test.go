package model

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/carrier-sync/internal/resilience"
)

func TestSyncJob_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j := &SyncJob{ID: "job-1", Status: JobStatusPending}

	require.NoError(t, j.Start(now))
	assert.Equal(t, JobStatusRunning, j.Status)
	require.NotNil(t, j.StartedAt)

	require.NoError(t, j.Complete(now.Add(time.Minute)))
	assert.Equal(t, JobStatusCompleted, j.Status)
	assert.True(t, j.Status.Terminal())

	err := j.Fail(now, "late failure")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrJobTerminal))
	assert.Equal(t, JobStatusCompleted, j.Status)
	assert.Empty(t, j.Error)
}

func TestSyncJob_StartRequiresPending(t *testing.T) {
	j := &SyncJob{ID: "job-2", Status: JobStatusRunning}
	assert.Error(t, j.Start(time.Now()))
}

func TestSyncJob_SuccessRate(t *testing.T) {
	j := &SyncJob{}
	assert.Equal(t, 0.0, j.SuccessRate())

	j.Processed = 10
	j.Updated = 9
	assert.InDelta(t, 0.9, j.SuccessRate(), 0.0001)
}

func TestValidateDOT(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1234567", "1234567", false},
		{"  44110 ", "44110", false},
		{"000123", "123", false},
		{"", "", true},
		{"12a45", "", true},
		{"-12", "", true},
		{"0000", "", true},
		{"123456789", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateDOT(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, resilience.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSafetyRating(t *testing.T) {
	assert.Equal(t, RatingSatisfactory, ParseSafetyRating("Satisfactory"))
	assert.Equal(t, RatingSatisfactory, ParseSafetyRating("S"))
	assert.Equal(t, RatingConditional, ParseSafetyRating(" CONDITIONAL "))
	assert.Equal(t, RatingUnsatisfactory, ParseSafetyRating("Unsatisfactory."))
	assert.Equal(t, RatingNotRated, ParseSafetyRating("None"))
	assert.Equal(t, RatingNotRated, ParseSafetyRating("Not Rated"))
	assert.Equal(t, RatingUnknown, ParseSafetyRating("pending review"))
	assert.Equal(t, SafetyRating(""), ParseSafetyRating("  "))
}

func TestEntityRecord_Fingerprint(t *testing.T) {
	a := EntityRecord{ExternalID: "1", LegalName: "ACME LLC", OperationClassification: []string{}}
	b := a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.LegalName = "ACME INC"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestInsuranceWindow_Key(t *testing.T) {
	w := InsuranceWindow{
		EntityID:   "99",
		ExpiryDate: time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC),
		AlertTier:  Tier15d,
	}
	assert.Equal(t, AlertKey{EntityID: "99", Tier: Tier15d, ExpiryDate: "2026-05-01"}, w.Key())
}
