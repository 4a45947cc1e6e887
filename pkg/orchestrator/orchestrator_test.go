package orchestrator_test

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
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
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

type fixture struct {
	store   *memory.Store
	orch    *orchestrator.Orchestrator
	clock   *clock.Fixed
	request *models.DataRequest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)
	orch := orchestrator.New(store.Requests(), store.Contracts(), store.Transfers(), store.Publications(),
		nil, nil, orchestrator.Config{ContractValidity: 365 * 24 * time.Hour, TermsDuration: "1 year"}, clk, getTestLogger())

	ctx := context.Background()
	publication := &models.DataPublication{
		Title:         "Fleet Telemetry 2025",
		PublisherRole: providerRole,
		UsagePolicy:   "research only",
	}
	require.NoError(t, store.Publications().Create(ctx, publication))

	request := &models.DataRequest{
		PublicationID: publication.ID,
		RequesterRole: consumerRole,
		RequestType:   models.RequestTypeDataAccess,
		Status:        models.RequestStatusApproved,
	}
	require.NoError(t, store.Requests().Create(ctx, request))

	return &fixture{store: store, orch: orch, clock: clk, request: request}
}

func TestHandleApproval(t *testing.T) {
	f := newFixture(t)

	contract, err := f.orch.HandleApproval(context.Background(), f.request)
	require.NoError(t, err)

	assert.Equal(t, f.request.ID, contract.RequestID)
	assert.Equal(t, models.ContractStatusActive, contract.Status)
	assert.Equal(t, providerRole, contract.ProviderRole)
	assert.Equal(t, consumerRole, contract.ConsumerRole)
	assert.Equal(t, f.clock.Now().Add(365*24*time.Hour), contract.ValidUntil)

	terms := contract.Terms.Data
	assert.Equal(t, "research only", terms.UsagePolicy)
	assert.Equal(t, "1 year", terms.Duration)
	assert.True(t, terms.AutoCreated)
}

func TestHandleApproval_IdempotentOnDuplicate(t *testing.T) {
	f := newFixture(t)

	first, err := f.orch.HandleApproval(context.Background(), f.request)
	require.NoError(t, err)

	second, err := f.orch.HandleApproval(context.Background(), f.request)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestHandleTermination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contract, err := f.orch.HandleApproval(ctx, f.request)
	require.NoError(t, err)

	open := &models.DataTransfer{ContractID: contract.ID, PublicationID: contract.PublicationID, InitiatorRole: providerRole}
	require.NoError(t, f.store.Transfers().Create(ctx, open))
	failed := &models.DataTransfer{ContractID: contract.ID, PublicationID: contract.PublicationID, InitiatorRole: providerRole, Status: models.TransferStatusFailed}
	require.NoError(t, f.store.Transfers().Create(ctx, failed))

	require.NoError(t, f.orch.HandleTermination(ctx, contract))

	got, err := f.store.Transfers().GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCancelled, got.Status)
	assert.Equal(t, "Transfer cancelled: contract terminated", got.Logs.Data[len(got.Logs.Data)-1].Message)

	got, err = f.store.Transfers().GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusFailed, got.Status)
}

func TestEnsureContract(t *testing.T) {
	f := newFixture(t)

	contract, err := f.orch.EnsureContract(roleContext(providerRole), f.request.ID)
	require.NoError(t, err)
	assert.Equal(t, f.request.ID, contract.RequestID)

	// Repair is idempotent too
	again, err := f.orch.EnsureContract(roleContext(providerRole), f.request.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.ID, again.ID)
}

func TestEnsureContract_ProviderOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.EnsureContract(roleContext(consumerRole), f.request.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestEnsureContract_RequiresApprovedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := &models.DataRequest{
		PublicationID: f.request.PublicationID,
		RequesterRole: consumerRole,
		RequestType:   models.RequestTypeDataAccess,
	}
	require.NoError(t, f.store.Requests().Create(ctx, pending))

	_, err := f.orch.EnsureContract(roleContext(providerRole), pending.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}
