package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories/memory"
)

type testValidator struct {
	validate *validator.Validate
}

func (v *testValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newTestServer(t *testing.T) (*echo.Echo, *memory.Store) {
	t.Helper()

	logger := getTestLogger()
	clk := &clock.Fixed{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clk)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Validator = &testValidator{validate: validator.New()}
	e.Use(middleware.Context())

	handlers.NewPublicationHandler(store.Publications(), logger).Register(e.Group("/api/v1/publications"))
	return e, store
}

func doRequest(e *echo.Echo, method, path, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req.Header.Set(middleware.HeaderActingRole, role)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPublicationHandler_Create(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "provider-co",
		`{"title":"Fleet Telemetry 2025","usage_policy":"research only"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.DataPublication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Fleet Telemetry 2025", created.Title)
	assert.Equal(t, "provider-co", created.PublisherRole)
}

func TestPublicationHandler_Create_RequiresRole(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "",
		`{"title":"Fleet Telemetry 2025","usage_policy":"research only"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicationHandler_Create_ValidatesBody(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "provider-co",
		`{"title":"Missing usage policy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicationHandler_ListMine(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "provider-co",
		`{"title":"Mine","usage_policy":"research only"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(e, http.MethodPost, "/api/v1/publications", "other-co",
		`{"title":"Theirs","usage_policy":"research only"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/publications?mine=true", "provider-co", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var mine []models.DataPublication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)

	rec = doRequest(e, http.MethodGet, "/api/v1/publications", "provider-co", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.DataPublication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestPublicationHandler_Update_OwnerOnly(t *testing.T) {
	e, store := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "provider-co",
		`{"title":"Fleet Telemetry 2025","usage_policy":"research only"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.DataPublication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(e, http.MethodPut, "/api/v1/publications/"+created.ID.String(), "other-co",
		`{"title":"Hijacked","usage_policy":"anything"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(e, http.MethodPut, "/api/v1/publications/"+created.ID.String(), "provider-co",
		`{"title":"Renamed","usage_policy":"research only"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := store.Publications().GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
}

func TestPublicationHandler_Delete(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/publications", "provider-co",
		`{"title":"Short Lived","usage_policy":"research only"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.DataPublication
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(e, http.MethodDelete, "/api/v1/publications/"+created.ID.String(), "other-co", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(e, http.MethodDelete, "/api/v1/publications/"+created.ID.String(), "provider-co", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(e, http.MethodGet, "/api/v1/publications/"+created.ID.String(), "provider-co", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicationHandler_InvalidUUID(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/v1/publications/not-a-uuid", "provider-co", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
