package compliance

import (
	"context"
	"testing"
	"time"

	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(f *fixture) *Sweeper {
	s := NewSweeper(f.store, 24*time.Hour, logger.NewNoOpLogger())
	s.now = func() time.Time { return f.now }
	return s
}

func TestSweep_FailsOnlyStaleCycles(t *testing.T) {
	f := newFixture(t)
	f.store.companies["c-1"].UpdatedAt = f.now.Add(-25 * time.Hour)
	f.store.addCompany(models.Company{
		ID: "c-2", UserID: "u-1", GenerationID: "g-2",
		ComplianceStatus: models.CompliancePending, EligibilityStatus: models.EligibilityPending,
		UpdatedAt: f.now.Add(-23 * time.Hour),
	})
	f.store.addCompany(models.Company{
		ID: "c-3", UserID: "u-1", GenerationID: "g-3",
		ComplianceStatus: models.ComplianceHigh, EligibilityStatus: models.EligibilitySME,
		UpdatedAt: f.now.Add(-72 * time.Hour),
	})

	ids, err := newTestSweeper(f).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1"}, ids)

	c1 := f.store.company("c-1")
	assert.Equal(t, models.ComplianceFailed, c1.ComplianceStatus)
	assert.Equal(t, models.EligibilityFailed, c1.EligibilityStatus)
	assert.Equal(t, models.CompliancePending, f.store.company("c-2").ComplianceStatus)
	assert.Equal(t, models.ComplianceHigh, f.store.company("c-3").ComplianceStatus)
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.store.companies["c-1"].UpdatedAt = f.now.Add(-48 * time.Hour)
	s := newTestSweeper(f)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	once := f.store.snapshot()

	ids, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, once, f.store.snapshot())
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.store.companies["c-1"].UpdatedAt = f.now.Add(-48 * time.Hour)
	s := newTestSweeper(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return f.store.company("c-1").ComplianceStatus == models.ComplianceFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
