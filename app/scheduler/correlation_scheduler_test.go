package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/amirphl/orochi-attribution/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu       sync.Mutex
	requests []dto.CorrelateRequest
	errFor   map[string]error
}

func (r *recordingRunner) Run(_ context.Context, req *dto.CorrelateRequest) (*dto.CorrelationSummaryResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, *req)
	if err := r.errFor[req.SellerID]; err != nil {
		return nil, err
	}
	return &dto.CorrelationSummaryResponse{RunID: "run-" + req.SellerID, SellerID: req.SellerID}, nil
}

func (r *recordingRunner) calls() []dto.CorrelateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.CorrelateRequest(nil), r.requests...)
}

func TestCorrelationScheduler_RunOnceVisitsEverySeller(t *testing.T) {
	runner := &recordingRunner{errFor: map[string]error{
		"busy":   businessflow.NewBusinessError("CORRELATION_RUN_IN_PROGRESS", "busy", businessflow.ErrCorrelationRunInProgress),
		"broken": fmt.Errorf("feed down"),
	}}
	s := NewCorrelationScheduler(runner, config.SchedulerConfig{
		SellerIDs:     []string{"busy", "broken", "ok"},
		LookbackHours: 36,
	}, time.Minute, filepath.Join(t.TempDir(), "logs", "scheduler.log"))

	s.RunOnce(context.Background())

	calls := runner.calls()
	require.Len(t, calls, 3, "a failing seller does not stop the others")
	assert.Equal(t, "ok", calls[2].SellerID)
	require.NotNil(t, calls[2].LookbackHours)
	assert.Equal(t, 36, *calls[2].LookbackHours)
	assert.False(t, calls[2].DryRun)
}

func TestCorrelationScheduler_DefaultLookbackIsLeftToTheFlow(t *testing.T) {
	runner := &recordingRunner{}
	s := NewCorrelationScheduler(runner, config.SchedulerConfig{SellerIDs: []string{"s1"}}, time.Minute, "")

	s.RunOnce(context.Background())

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].LookbackHours)
}

func TestCorrelationScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	runner := &recordingRunner{}
	s := NewCorrelationScheduler(runner, config.SchedulerConfig{
		SellerIDs:           []string{"s1"},
		CorrelationInterval: time.Hour,
	}, time.Minute, "")

	stop := s.Start(context.Background())
	assert.Eventually(t, func() bool { return len(runner.calls()) == 1 }, time.Second, 10*time.Millisecond)
	stop()

	assert.Len(t, runner.calls(), 1)
}

func TestCorrelationScheduler_CancelledContextSkipsSellers(t *testing.T) {
	runner := &recordingRunner{}
	s := NewCorrelationScheduler(runner, config.SchedulerConfig{SellerIDs: []string{"s1", "s2"}}, time.Minute, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	assert.Empty(t, runner.calls())
}
