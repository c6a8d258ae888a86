// Package scheduler runs periodic correlation passes
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/amirphl/orochi-attribution/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CorrelationRunner is the part of the correlation flow the scheduler needs
type CorrelationRunner interface {
	Run(ctx context.Context, req *dto.CorrelateRequest) (*dto.CorrelationSummaryResponse, error)
}

// CorrelationScheduler periodically runs a correlation pass for every configured seller
type CorrelationScheduler struct {
	runner        CorrelationRunner
	sellerIDs     []string
	lookbackHours int
	interval      time.Duration
	runTimeout    time.Duration
	logger        *log.Logger
	logSink       io.Closer
}

func NewCorrelationScheduler(
	runner CorrelationRunner,
	cfg config.SchedulerConfig,
	runTimeout time.Duration,
	logPath string,
) *CorrelationScheduler {
	interval := cfg.CorrelationInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}

	s := &CorrelationScheduler{
		runner:        runner,
		sellerIDs:     cfg.SellerIDs,
		lookbackHours: cfg.LookbackHours,
		interval:      interval,
		runTimeout:    runTimeout,
	}
	s.initSchedulerLogger(logPath)
	return s
}

// initSchedulerLogger writes to stdout and, when logPath is set, a rotated file
func (s *CorrelationScheduler) initSchedulerLogger(logPath string) {
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC
	if logPath == "" {
		s.logger = log.New(os.Stdout, "scheduler ", flags)
		return
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		s.logger = log.New(os.Stdout, "scheduler ", flags)
		s.logger.Printf("scheduler: failed to create log dir, logging to stdout only: %v", err)
		return
	}
	sink := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	s.logSink = sink
	s.logger = log.New(io.MultiWriter(os.Stdout, sink), "scheduler ", flags)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function.
// The stop function waits for an in-flight pass to observe cancellation.
func (s *CorrelationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
		if s.logSink != nil {
			_ = s.logSink.Close()
		}
	}
}

// RunOnce runs one pass per seller, one seller at a time
func (s *CorrelationScheduler) RunOnce(ctx context.Context) {
	if len(s.sellerIDs) == 0 {
		s.logger.Printf("scheduler: no seller ids configured, skipping")
		return
	}
	for _, sellerID := range s.sellerIDs {
		if ctx.Err() != nil {
			return
		}
		s.runSeller(ctx, sellerID)
	}
}

func (s *CorrelationScheduler) runSeller(parent context.Context, sellerID string) {
	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()

	req := &dto.CorrelateRequest{SellerID: sellerID}
	if s.lookbackHours > 0 {
		hours := s.lookbackHours
		req.LookbackHours = &hours
	}

	summary, err := s.runner.Run(ctx, req)
	if err != nil {
		if businessflow.IsCorrelationRunInProgress(err) {
			s.logger.Printf("scheduler: seller=%s skipped, another pass holds the lease", sellerID)
			return
		}
		s.logger.Printf("scheduler: seller=%s correlation failed: %v", sellerID, err)
		return
	}
	s.logger.Printf("scheduler: seller=%s run=%s processed=%d candidates=%d correlated=%d already=%d no_match=%d errors=%d",
		sellerID, summary.RunID, summary.OrdersProcessed, summary.OrdersWithCandidates,
		summary.Correlated, summary.AlreadyCorrelated, summary.NoMatch, summary.Errors)
}
