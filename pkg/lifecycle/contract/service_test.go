package contract_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/blob"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/lifecycle/contract"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
)

const (
	providerRole = "provider-co"
	consumerRole = "consumer-co"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func roleContext(role string) context.Context {
	return appctx.SetActingRole(context.Background(), role)
}

func strPtr(s string) *string { return &s }

type fixture struct {
	store    *memory.Store
	service  *contract.Service
	clock    *clock.Fixed
	contract *models.DataContract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)
	logger := getTestLogger()

	resolver := blob.NewResolver("http://localhost:9000", "data-space", nil, 5*time.Minute, logger)
	service := contract.NewService(store.Contracts(), store.Publications(), nil, resolver, clk, logger)
	orch := orchestrator.New(store.Requests(), store.Contracts(), store.Transfers(), store.Publications(),
		nil, nil, orchestrator.Config{ContractValidity: 365 * 24 * time.Hour, TermsDuration: "1 year"}, clk, logger)
	service.SetTerminationHandler(orch)

	ctx := context.Background()
	publication := &models.DataPublication{
		Title:         "Fleet Telemetry 2025",
		PublisherRole: providerRole,
		UsagePolicy:   "research only",
		FilePath:      strPtr("telemetry/2025.parquet"),
	}
	require.NoError(t, store.Publications().Create(ctx, publication))

	request := &models.DataRequest{
		PublicationID: publication.ID,
		RequesterRole: consumerRole,
		RequestType:   models.RequestTypeDataAccess,
		Status:        models.RequestStatusApproved,
	}
	require.NoError(t, store.Requests().Create(ctx, request))

	agreed := &models.DataContract{
		RequestID:     request.ID,
		PublicationID: publication.ID,
		ProviderRole:  providerRole,
		ConsumerRole:  consumerRole,
		ValidUntil:    clk.Now().Add(30 * 24 * time.Hour),
	}
	require.NoError(t, store.Contracts().Create(ctx, agreed))

	return &fixture{store: store, service: service, clock: clk, contract: agreed}
}

func TestService_Get_PartyOnly(t *testing.T) {
	f := newFixture(t)

	got, err := f.service.Get(roleContext(consumerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, f.contract.ID, got.ID)

	_, err = f.service.Get(roleContext("bystander-co"), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_SuspendResume(t *testing.T) {
	f := newFixture(t)

	suspended, err := f.service.Suspend(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusSuspended, suspended.Status)

	// Suspending twice is not a valid transition
	_, err = f.service.Suspend(roleContext(providerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))

	resumed, err := f.service.Resume(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, resumed.Status)
}

func TestService_Suspend_ProviderOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Suspend(roleContext(consumerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))

	_, err = f.service.Resume(roleContext(consumerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Terminate_EitherParty(t *testing.T) {
	f := newFixture(t)

	terminated, err := f.service.Terminate(roleContext(consumerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusTerminated, terminated.Status)
	require.NotNil(t, terminated.TerminatedAt)
	assert.Equal(t, f.clock.Now(), *terminated.TerminatedAt)

	_, err = f.service.Terminate(roleContext(providerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestService_Terminate_FromSuspended(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Suspend(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)

	terminated, err := f.service.Terminate(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusTerminated, terminated.Status)
}

func TestService_Terminate_CancelsOpenTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := &models.DataTransfer{
		ContractID:    f.contract.ID,
		PublicationID: f.contract.PublicationID,
		InitiatorRole: providerRole,
	}
	require.NoError(t, f.store.Transfers().Create(ctx, pending))

	completed := &models.DataTransfer{
		ContractID:    f.contract.ID,
		PublicationID: f.contract.PublicationID,
		InitiatorRole: providerRole,
		Status:        models.TransferStatusCompleted,
	}
	require.NoError(t, f.store.Transfers().Create(ctx, completed))

	_, err := f.service.Terminate(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)

	got, err := f.store.Transfers().GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCancelled, got.Status)

	// Finished transfers keep their outcome
	got, err = f.store.Transfers().GetByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, got.Status)
}

func TestService_DownloadURL(t *testing.T) {
	f := newFixture(t)

	url, err := f.service.DownloadURL(roleContext(consumerRole), f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/storage/v1/object/public/data-space/telemetry/2025.parquet", url)
}

func TestService_DownloadURL_Denied(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.DownloadURL(roleContext("bystander-co"), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))

	_, err = f.service.Suspend(roleContext(providerRole), f.contract.ID)
	require.NoError(t, err)
	_, err = f.service.DownloadURL(roleContext(consumerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindContractNotActive))
}

func TestService_DownloadURL_ExpiredContract(t *testing.T) {
	f := newFixture(t)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err := f.service.DownloadURL(roleContext(consumerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindContractNotActive))
}

func TestService_DownloadURL_NoStoredFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	publication, err := f.store.Publications().GetByID(ctx, f.contract.PublicationID)
	require.NoError(t, err)
	publication.FilePath = nil
	require.NoError(t, f.store.Publications().Update(ctx, publication))

	_, err = f.service.DownloadURL(roleContext(consumerRole), f.contract.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindNotFound))
}
