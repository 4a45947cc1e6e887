// Package scheduler runs the background sweep that expires pending
// requests nobody decided in time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSweeperStopped is returned when the sweeper is stopped
	ErrSweeperStopped = errors.New("sweeper stopped")

	// ErrSweeperAlreadyRunning is returned when trying to start an already running sweeper
	ErrSweeperAlreadyRunning = errors.New("sweeper already running")
)

const (
	// DefaultPollInterval is the default interval between sweep runs
	DefaultPollInterval = time.Minute

	// DefaultLockTTL is the default TTL for the sweep lock
	DefaultLockTTL = 60 * time.Second

	// DefaultBatchSize is the number of requests to expire per sweep
	DefaultBatchSize = 100

	// lockKey is the distributed lock shared by all instances
	lockKey = "sweeper:requests"
)

// ExpiryService expires a single pending request
type ExpiryService interface {
	Expire(ctx context.Context, id uuid.UUID) (*models.DataRequest, error)
}

// Config holds configuration for the sweeper
type Config struct {
	// PollInterval is how often to sweep
	PollInterval time.Duration

	// LockTTL is how long to hold the sweep lock
	LockTTL time.Duration

	// BatchSize is the maximum number of requests to expire per sweep
	BatchSize int

	// RequestTTL is how long a request may stay pending
	RequestTTL time.Duration
}

// DefaultConfig returns the default sweeper configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
		RequestTTL:   30 * 24 * time.Hour,
	}
}

// Sweeper periodically expires stale pending requests. A Redis lock
// keeps multiple instances from sweeping the same batch; the
// conditional update underneath makes a double sweep harmless anyway.
type Sweeper struct {
	requests repositories.RequestRepo
	expiry   ExpiryService
	locker   *redis.Locker
	config   Config
	clock    clock.Clock
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewSweeper creates a new sweeper
func NewSweeper(
	requests repositories.RequestRepo,
	expiry ExpiryService,
	locker *redis.Locker,
	config Config,
	clk clock.Clock,
	logger ectologger.Logger,
) *Sweeper {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.RequestTTL <= 0 {
		config.RequestTTL = DefaultConfig().RequestTTL
	}

	return &Sweeper{
		requests: requests,
		expiry:   expiry,
		locker:   locker,
		config:   config,
		clock:    clk,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the sweeper
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSweeperAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting request sweeper: poll_interval=%s request_ttl=%s batch_size=%d",
		s.config.PollInterval, s.config.RequestTTL, s.config.BatchSize)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the sweeper gracefully
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping request sweeper...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Request sweeper stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Request sweeper shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the sweeper is running
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runSweep(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Sweeper poll loop stopping")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep runs a single sweep cycle
func (s *Sweeper) runSweep(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Sweeper.runSweep")
	defer span.End()

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, lockKey, s.config.LockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				metrics.SweeperRunsTotal.WithLabelValues("skipped").Inc()
				s.logger.WithContext(ctx).Debug("Another instance holds the sweep lock")
				return
			}
			metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
			s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire sweep lock")
			return
		}
		defer lock.Release(ctx)
	}

	start := time.Now()
	cutoff := s.clock.Now().Add(-s.config.RequestTTL)

	stale, err := s.requests.ListExpirable(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		metrics.SweeperRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list expirable requests")
		return
	}

	if len(stale) == 0 {
		metrics.SweeperRunsTotal.WithLabelValues("empty").Inc()
		s.logger.WithContext(ctx).Debug("No requests to expire")
		return
	}

	expired := 0
	for _, request := range stale {
		if _, err := s.expiry.Expire(ctx, request.ID); err != nil {
			// Lost a race with a decider; the request found its outcome.
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to expire request %s", request.ID)
			continue
		}
		expired++
	}

	metrics.SweeperRunsTotal.WithLabelValues("ok").Inc()
	metrics.RequestsExpiredTotal.Add(float64(expired))
	s.logger.WithContext(ctx).Infof("Sweep completed: expired=%d candidates=%d duration=%s",
		expired, len(stale), time.Since(start))
}
