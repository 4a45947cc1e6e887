package request_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/appctx"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/lifecycle"
	"github.com/Ramsey-B/fern/pkg/lifecycle/request"
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
	service *request.Service
	clock   *clock.Fixed
}

func newFixture(t *testing.T) (*fixture, *models.DataPublication) {
	t.Helper()

	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)
	logger := getTestLogger()

	service := request.NewService(store.Requests(), store.Publications(), nil, clk, logger)
	orch := orchestrator.New(store.Requests(), store.Contracts(), store.Transfers(), store.Publications(),
		nil, nil, orchestrator.Config{ContractValidity: 365 * 24 * time.Hour, TermsDuration: "1 year"}, clk, logger)
	service.SetApprovalHandler(orch)

	publication := &models.DataPublication{
		Title:         "Fleet Telemetry 2025",
		PublisherRole: providerRole,
		UsagePolicy:   "research only",
	}
	require.NoError(t, store.Publications().Create(context.Background(), publication))

	return &fixture{store: store, service: service, clock: clk}, publication
}

func (f *fixture) createRequest(t *testing.T, publicationID uuid.UUID) *models.DataRequest {
	t.Helper()
	created, err := f.service.Create(roleContext(consumerRole), request.CreateInput{
		PublicationID: publicationID,
		RequestType:   models.RequestTypeDataAccess,
	})
	require.NoError(t, err)
	return created
}

func TestService_Create(t *testing.T) {
	f, publication := newFixture(t)

	created := f.createRequest(t, publication.ID)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	assert.Equal(t, consumerRole, created.RequesterRole)
}

func TestService_Create_RequiresRole(t *testing.T) {
	f, publication := newFixture(t)

	_, err := f.service.Create(context.Background(), request.CreateInput{
		PublicationID: publication.ID,
		RequestType:   models.RequestTypeDataAccess,
	})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Create_RejectsOwnPublication(t *testing.T) {
	f, publication := newFixture(t)

	_, err := f.service.Create(roleContext(providerRole), request.CreateInput{
		PublicationID: publication.ID,
		RequestType:   models.RequestTypeDataAccess,
	})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindConstraintViolation))
}

func TestService_Create_UnknownRequestType(t *testing.T) {
	f, publication := newFixture(t)

	_, err := f.service.Create(roleContext(consumerRole), request.CreateInput{
		PublicationID: publication.ID,
		RequestType:   "Bulk Export",
	})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindConstraintViolation))
}

func TestService_Create_MissingPublication(t *testing.T) {
	f, _ := newFixture(t)

	_, err := f.service.Create(roleContext(consumerRole), request.CreateInput{
		PublicationID: uuid.New(),
		RequestType:   models.RequestTypeDataAccess,
	})
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindNotFound))
}

func TestService_Get_PartyVisibility(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	got, err := f.service.Get(roleContext(consumerRole), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.service.Get(roleContext(providerRole), created.ID)
	require.NoError(t, err)

	_, err = f.service.Get(roleContext("bystander-co"), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Approve_CreatesContract(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	note := "welcome aboard"
	result, err := f.service.Approve(roleContext(providerRole), created.ID, &note)
	require.NoError(t, err)

	assert.Equal(t, models.RequestStatusApproved, result.Request.Status)
	assert.Equal(t, f.clock.Now(), *result.Request.DecidedAt)

	require.NotNil(t, result.Contract)
	assert.Equal(t, models.ContractStatusActive, result.Contract.Status)
	assert.Equal(t, providerRole, result.Contract.ProviderRole)
	assert.Equal(t, consumerRole, result.Contract.ConsumerRole)
	assert.Equal(t, publication.UsagePolicy, result.Contract.Terms.Data.UsagePolicy)
	assert.True(t, result.Contract.Terms.Data.AutoCreated)
	assert.Equal(t, f.clock.Now().Add(365*24*time.Hour), result.Contract.ValidUntil)
}

func TestService_Approve_ConsumerForbidden(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	_, err := f.service.Approve(roleContext(consumerRole), created.ID, nil)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized))
}

func TestService_Approve_AlreadyDecided(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	_, err := f.service.Reject(roleContext(providerRole), created.ID, nil)
	require.NoError(t, err)

	_, err = f.service.Approve(roleContext(providerRole), created.ID, nil)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

type failingApproval struct{}

func (failingApproval) HandleApproval(ctx context.Context, request *models.DataRequest) (*models.DataContract, error) {
	return nil, errors.New("contract store unavailable")
}

func TestService_Approve_ContractFailureLeavesRequestApproved(t *testing.T) {
	f, publication := newFixture(t)
	f.service.SetApprovalHandler(failingApproval{})
	created := f.createRequest(t, publication.ID)

	_, err := f.service.Approve(roleContext(providerRole), created.ID, nil)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindContractCreationFailed))

	// The approval itself is committed; only the contract is missing.
	stored, getErr := f.store.Requests().GetByID(context.Background(), created.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.RequestStatusApproved, stored.Status)
}

func TestService_Reject(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	note := "not this quarter"
	rejected, err := f.service.Reject(roleContext(providerRole), created.ID, &note)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, note, *rejected.DecisionNote)

	// No contract comes out of a rejection
	_, err = f.store.Contracts().GetByRequestID(context.Background(), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindNotFound))
}

func TestService_Cancel(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	err := f.service.Cancel(roleContext(providerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindUnauthorized), "only the requester may cancel")

	require.NoError(t, f.service.Cancel(roleContext(consumerRole), created.ID))

	_, err = f.store.Requests().GetByID(context.Background(), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindNotFound))
}

func TestService_Cancel_DecidedRequest(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	_, err := f.service.Approve(roleContext(providerRole), created.ID, nil)
	require.NoError(t, err)

	err = f.service.Cancel(roleContext(consumerRole), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}

func TestService_Expire(t *testing.T) {
	f, publication := newFixture(t)
	created := f.createRequest(t, publication.ID)

	expired, err := f.service.Expire(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusExpired, expired.Status)
	// Only a party's approve/reject counts as a response
	assert.Nil(t, expired.DecidedAt)
	assert.Nil(t, expired.DecisionNote)

	// Expiry loses to an earlier decision
	_, err = f.service.Expire(context.Background(), created.ID)
	assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidTransition))
}
