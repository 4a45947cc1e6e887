package transfer_test

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
	"github.com/Ramsey-B/fern/pkg/lifecycle/transfer"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
)

const (
	providerRole  = "provider-co"
	consumerRole  = "consumer-co"
	defaultMethod = "Direct Download"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func roleContext(role string) context.Context {
	return appctx.SetActingRole(context.Background(), role)
}

type fixture struct {
	store    *memory.Store
	service  *transfer.Service
	clock    *clock.Fixed
	contract *models.DataContract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)
	logger := getTestLogger()
	resolver := blob.NewResolver("http://localhost:9000", "data-space", nil, 5*time.Minute, logger)
	service := transfer.NewService(store.Transfers(), store.Contracts(), store.Publications(), nil, resolver, defaultMethod, clk, logger)

	ctx := context.Background()
	filePath := "telemetry/2025.parquet"
	fileSize := int64(1000)
	publication := &models.DataPublication{
		Title:         "Fleet Telemetry 2025",
		PublisherRole: providerRole,
		UsagePolicy:   "research only",
		FilePath:      &filePath,
		FileSize:      &fileSize,
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

func (f *fixture) initiate(t *testing.T) *models.DataTransfer {
	t.Helper()
	created, err := f.service.Initiate(roleContext(providerRole), transfer.InitiateInput{ContractID: f.contract.ID})
	require.NoError(t, err)
	return created
}

func TestService_Initiate(t *testing.T) {
	f := newFixture(t)

	created := f.initiate(t)
	assert.Equal(t, models.TransferStatusPending, created.Status)
	assert.Equal(t, defaultMethod, created.TransferMethod)
	assert.Equal(t, providerRole, created.InitiatorRole)
	assert.Zero(t, created.BytesTransferred)
	require.Len(t, created.Logs.Data, 1)
	assert.Equal(t, "Transfer initiated", created.Logs.Data[0].Message)
}

func TestService_Initiate_ExplicitMethod(t *testing.T) {
	f := newFixture(t)

	created, err := f.service.Initiate(roleContext(providerRole), transfer.InitiateInput{
		ContractID:     f.contract.ID,
		TransferMethod: "SFTP Push",
	})
	require.NoError(t, err)
	assert.Equal(t, "SFTP Push", created.TransferMethod)
}

func TestService_Initiate_ProviderOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Initiate(roleContext(consumerRole), transfer.InitiateInput{ContractID: f.contract.ID})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Initiate_InactiveContract(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Contracts().UpdateStatus(context.Background(), f.contract.ID,
		[]models.ContractStatus{models.ContractStatusActive}, models.ContractStatusSuspended, nil)
	require.NoError(t, err)

	_, err = f.service.Initiate(roleContext(providerRole), transfer.InitiateInput{ContractID: f.contract.ID})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindContractNotActive))
}

func TestService_Initiate_ExpiredContract(t *testing.T) {
	f := newFixture(t)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err := f.service.Initiate(roleContext(providerRole), transfer.InitiateInput{ContractID: f.contract.ID})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindContractNotActive))
}

func TestService_StartCompleteFlow(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	started, err := f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, f.clock.Now(), *started.StartedAt)

	updated, err := f.service.ReportProgress(roleContext(providerRole), created.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), updated.BytesTransferred)
	assert.Equal(t, models.TransferStatusInProgress, updated.Status)

	completed, err := f.service.Complete(roleContext(providerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, int64(1000), completed.BytesTransferred)
	require.Len(t, completed.Logs.Data, 3)
	assert.Equal(t, "Transfer completed", completed.Logs.Data[2].Message)
}

func TestService_ReportProgress_Monotonic(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	_, err = f.service.ReportProgress(roleContext(providerRole), created.ID, 600)
	require.NoError(t, err)

	// Same count twice is idempotent.
	updated, err := f.service.ReportProgress(roleContext(providerRole), created.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), updated.BytesTransferred)

	_, err = f.service.ReportProgress(roleContext(providerRole), created.ID, 400)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindConstraintViolation))
}

func TestService_ProgressPercent_UsesByteCounts(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	ctx := roleContext(providerRole)
	assert.Equal(t, 0, f.service.ProgressPercent(ctx, created))

	_, err := f.service.Start(ctx, created.ID)
	require.NoError(t, err)

	updated, err := f.service.ReportProgress(ctx, created.ID, 990)
	require.NoError(t, err)
	assert.Equal(t, 99, f.service.ProgressPercent(ctx, updated))

	completed, err := f.service.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, f.service.ProgressPercent(ctx, completed))
}

func TestService_ReportProgress_ExceedsPublicationSize(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	_, err = f.service.ReportProgress(roleContext(providerRole), created.ID, 1500)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindConstraintViolation))
}

func TestService_ReportProgress_RequiresInProgress(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.ReportProgress(roleContext(providerRole), created.ID, 100)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))

	_, err = f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)
	_, err = f.service.Cancel(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	_, err = f.service.ReportProgress(roleContext(providerRole), created.ID, 100)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestService_Complete_RequiresInProgress(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Complete(roleContext(providerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestService_Fail(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	failed, err := f.service.Fail(roleContext(providerRole), created.ID, "checksum mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusFailed, failed.Status)
	assert.Equal(t, "checksum mismatch", *failed.FailureReason)
	assert.Equal(t, "Transfer failed: checksum mismatch", failed.Logs.Data[len(failed.Logs.Data)-1].Message)
}

func TestService_Fail_DefaultReason(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	failed, err := f.service.Fail(roleContext(providerRole), created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "transfer failed", *failed.FailureReason)
}

func TestService_Start_ProviderOnly(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Start(roleContext(consumerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Cancel_EitherParty(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	cancelled, err := f.service.Cancel(roleContext(consumerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, f.clock.Now(), *cancelled.CancelledAt)
	assert.Equal(t, "Transfer cancelled by "+consumerRole, cancelled.Logs.Data[len(cancelled.Logs.Data)-1].Message)

	_, err = f.service.Cancel(roleContext(providerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestService_Cancel_NonParty(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.Cancel(roleContext("bystander-co"), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_DownloadURL(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	_, err := f.service.DownloadURL(roleContext(consumerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))

	_, err = f.service.Start(roleContext(providerRole), created.ID)
	require.NoError(t, err)
	_, err = f.service.Complete(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	url, err := f.service.DownloadURL(roleContext(consumerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/storage/v1/object/public/data-space/telemetry/2025.parquet", url)

	_, err = f.service.DownloadURL(roleContext("bystander-co"), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Get_PartyVisibility(t *testing.T) {
	f := newFixture(t)
	created := f.initiate(t)

	got, err := f.service.Get(roleContext(consumerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.service.Get(roleContext("bystander-co"), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}
