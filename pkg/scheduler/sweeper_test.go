package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type recordingExpiry struct {
	expired []uuid.UUID
}

func (r *recordingExpiry) Expire(ctx context.Context, id uuid.UUID) (*models.DataRequest, error) {
	r.expired = append(r.expired, id)
	return &models.DataRequest{ID: id, Status: models.RequestStatusExpired}, nil
}

func seedRequest(t *testing.T, store *memory.Store, publicationID uuid.UUID) *models.DataRequest {
	t.Helper()
	request := &models.DataRequest{
		PublicationID: publicationID,
		RequesterRole: "consumer-co",
		RequestType:   models.RequestTypeDataAccess,
	}
	require.NoError(t, store.Requests().Create(context.Background(), request))
	return request
}

func TestRunSweep_ExpiresStalePendingRequests(t *testing.T) {
	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)

	publication := &models.DataPublication{Title: "Fleet Telemetry 2025", PublisherRole: "provider-co", UsagePolicy: "research only"}
	require.NoError(t, store.Publications().Create(context.Background(), publication))

	stale := seedRequest(t, store, publication.ID)

	// Created after the cutoff, must survive the sweep
	clk.Advance(29 * 24 * time.Hour)
	fresh := seedRequest(t, store, publication.ID)
	clk.Advance(2 * 24 * time.Hour)

	expiry := &recordingExpiry{}
	sweeper := NewSweeper(store.Requests(), expiry, nil, Config{RequestTTL: 30 * 24 * time.Hour}, clk, getTestLogger())

	sweeper.runSweep(context.Background())

	require.Len(t, expiry.expired, 1)
	assert.Equal(t, stale.ID, expiry.expired[0])
	assert.NotContains(t, expiry.expired, fresh.ID)
}

func TestRunSweep_SkipsDecidedRequests(t *testing.T) {
	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)

	publication := &models.DataPublication{Title: "Fleet Telemetry 2025", PublisherRole: "provider-co", UsagePolicy: "research only"}
	require.NoError(t, store.Publications().Create(context.Background(), publication))

	decided := seedRequest(t, store, publication.ID)
	_, err := store.Requests().Decide(context.Background(), decided.ID, models.RequestStatusApproved, nil, clk.Now())
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)

	expiry := &recordingExpiry{}
	sweeper := NewSweeper(store.Requests(), expiry, nil, Config{RequestTTL: 30 * 24 * time.Hour}, clk, getTestLogger())

	sweeper.runSweep(context.Background())
	assert.Empty(t, expiry.expired)
}

func TestRunSweep_HonorsBatchSize(t *testing.T) {
	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)

	publication := &models.DataPublication{Title: "Fleet Telemetry 2025", PublisherRole: "provider-co", UsagePolicy: "research only"}
	require.NoError(t, store.Publications().Create(context.Background(), publication))

	for i := 0; i < 5; i++ {
		seedRequest(t, store, publication.ID)
	}
	clk.Advance(31 * 24 * time.Hour)

	expiry := &recordingExpiry{}
	sweeper := NewSweeper(store.Requests(), expiry, nil, Config{RequestTTL: 30 * 24 * time.Hour, BatchSize: 2}, clk, getTestLogger())

	sweeper.runSweep(context.Background())
	assert.Len(t, expiry.expired, 2)
}

func TestSweeper_StartStop(t *testing.T) {
	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)

	sweeper := NewSweeper(store.Requests(), &recordingExpiry{}, nil, Config{PollInterval: time.Hour}, clk, getTestLogger())

	ctx := context.Background()
	require.NoError(t, sweeper.Start(ctx))
	assert.True(t, sweeper.IsRunning())
	assert.Equal(t, ErrSweeperAlreadyRunning, sweeper.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sweeper.Stop(stopCtx))
	assert.False(t, sweeper.IsRunning())

	// Stopping twice is a no-op
	require.NoError(t, sweeper.Stop(stopCtx))
}
