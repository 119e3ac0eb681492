package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nmathey/finahack/internal/infra/gateway/finary"
	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/session"
	"github.com/nmathey/finahack/internal/platform/sync"
	apperrors "github.com/nmathey/finahack/internal/shared/errors"
	"github.com/nmathey/finahack/internal/transport/httpapi"
	"github.com/nmathey/finahack/internal/transport/httpapi/handler"
	"github.com/nmathey/finahack/pkg/logger"
)

// =============================================================================
// Test doubles
// =============================================================================

type MockHoldingsService struct {
	mock.Mock
}

func (m *MockHoldingsService) Refresh(ctx context.Context) (*sync.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sync.Result), args.Error(1)
}

func (m *MockHoldingsService) Assets(ctx context.Context) (*holdings.Cache, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*holdings.Cache), args.Error(1)
}

func (m *MockHoldingsService) Annotate(ctx context.Context, key string, note holdings.Annotation) (*holdings.Cache, error) {
	args := m.Called(ctx, key, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*holdings.Cache), args.Error(1)
}

func (m *MockHoldingsService) ImportAnnotations(ctx context.Context, records []holdings.NormalizedAsset) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *MockHoldingsService) Movers(ctx context.Context, r history.Range) (*history.Report, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*history.Report), args.Error(1)
}

type MockFinaryClient struct {
	mock.Mock
}

func (m *MockFinaryClient) CreateRealEstate(ctx context.Context, re finary.RealEstate) (*finary.RealEstate, error) {
	args := m.Called(ctx, re)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finary.RealEstate), args.Error(1)
}

func (m *MockFinaryClient) UpdateRealEstate(ctx context.Context, id string, re finary.RealEstate) (*finary.RealEstate, error) {
	args := m.Called(ctx, id, re)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finary.RealEstate), args.Error(1)
}

func (m *MockFinaryClient) DeleteRealEstate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockFinaryClient) CreateCrowdlending(ctx context.Context, cl finary.Crowdlending) (*finary.Crowdlending, error) {
	args := m.Called(ctx, cl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finary.Crowdlending), args.Error(1)
}

func (m *MockFinaryClient) UpdateCrowdlending(ctx context.Context, id string, cl finary.Crowdlending) (*finary.Crowdlending, error) {
	args := m.Called(ctx, id, cl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finary.Crowdlending), args.Error(1)
}

func (m *MockFinaryClient) DeleteCrowdlending(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockFinaryClient) UpdateDisplayCurrency(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

type fixture struct {
	router  http.Handler
	service *MockHoldingsService
	client  *MockFinaryClient
	broker  *session.Broker
}

func setupRouter(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("development", io.Discard)

	f := &fixture{
		service: new(MockHoldingsService),
		client:  new(MockFinaryClient),
		broker:  session.NewBroker(log),
	}
	f.router = httpapi.NewRouter(httpapi.Config{
		Logger:          log,
		AllowedOrigins:  []string{"chrome-extension://*"},
		SessionHandler:  handler.NewSessionHandler(f.broker),
		HoldingsHandler: handler.NewHoldingsHandler(f.service, log),
		ManualHandler:   handler.NewManualHandler(f.client),
		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"cache": handler.PingFunc(func(context.Context) error { return nil }),
		}),
		RateLimit: func(next http.Handler) http.Handler { return next },
	})
	t.Cleanup(func() {
		f.service.AssertExpectations(t)
		f.client.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(method, path string, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// =============================================================================
// Health and metrics
// =============================================================================

func TestHealth(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = f.do(http.MethodGet, "/health/detailed", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["checks"].(map[string]any)["cache"])
}

func TestMetricsExposed(t *testing.T) {
	f := setupRouter(t)

	f.do(http.MethodGet, "/health", "")
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finahack_http_requests_total")
}

// =============================================================================
// Session
// =============================================================================

func TestSession_PushTokenThenStatus(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, false, decodeBody(t, rec)["has_token"])

	rec = f.do(http.MethodPost, "/api/v1/session/token", `{"token":"Bearer abc"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["has_token"])

	token, err := f.broker.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestSession_TokenFromAuthorizationHeader(t *testing.T) {
	f := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/token", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	token, _ := f.broker.GetToken(context.Background())
	assert.Equal(t, "from-header", token)
}

func TestSession_EmptyToken(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodPost, "/api/v1/session/token", `{"token":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_RefreshRequestedIsVisible(t *testing.T) {
	f := setupRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.broker.RequestNewToken(ctx)

	require.Eventually(t, func() bool {
		var status handler.SessionResponse
		rec := f.do(http.MethodGet, "/api/v1/session", "")
		return json.Unmarshal(rec.Body.Bytes(), &status) == nil && status.RefreshRequested
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// Holdings
// =============================================================================

func TestSync_Success(t *testing.T) {
	f := setupRouter(t)
	f.service.On("Refresh", mock.Anything).Return(&sync.Result{SyncID: "s1", Assets: 3}, nil)

	rec := f.do(http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "s1", body["sync_id"])
	assert.Equal(t, float64(3), body["assets"])
}

func TestSync_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"expired session", apperrors.Unauthorized("Finary session expired", nil), http.StatusUnauthorized, apperrors.ErrCodeUnauthorized},
		{"upstream down", apperrors.Upstream("Finary is unreachable", nil), http.StatusBadGateway, apperrors.ErrCodeUpstream},
		{"storage", apperrors.Storage("Could not save", nil), http.StatusInternalServerError, apperrors.ErrCodeStorage},
		{"plain error", assert.AnError, http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupRouter(t)
			f.service.On("Refresh", mock.Anything).Return(nil, tt.err)

			rec := f.do(http.MethodPost, "/api/v1/sync", "")
			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.code, body["code"])
			assert.NotContains(t, body["error"], "assert.AnError")
		})
	}
}

func TestListAssets(t *testing.T) {
	f := setupRouter(t)
	refreshed := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	f.service.On("Assets", mock.Anything).Return(&holdings.Cache{
		LastRefresh: refreshed,
		Assets:      []holdings.NormalizedAsset{{ID: "1", AssetID: "1", Name: "Bitcoin", CurrentValue: dec("100")}},
	}, nil)

	rec := f.do(http.MethodGet, "/api/v1/assets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "2025-02-01T09:00:00Z", body["last_refresh"])
	require.Len(t, body["assets"], 1)
}

func TestListAssets_EmptyCache(t *testing.T) {
	f := setupRouter(t)
	f.service.On("Assets", mock.Anything).Return(&holdings.Cache{}, nil)

	rec := f.do(http.MethodGet, "/api/v1/assets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"assets":[]}`, rec.Body.String())
}

func TestExportCSV(t *testing.T) {
	f := setupRouter(t)
	f.service.On("Assets", mock.Anything).Return(&holdings.Cache{
		Assets: []holdings.NormalizedAsset{{ID: "1", AssetID: "1", Name: "Bitcoin", MyAssetType: "long term"}},
	}, nil)

	rec := f.do(http.MethodGet, "/api/v1/assets/export.csv", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))

	records, err := holdings.ReadCSV(rec.Body)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "long term", records[0].MyAssetType)
}

func TestImportCSV(t *testing.T) {
	f := setupRouter(t)

	var buf bytes.Buffer
	require.NoError(t, holdings.WriteCSV(&buf, []holdings.NormalizedAsset{
		{ID: "1", AssetID: "1", Name: "Bitcoin", MyAssetType: "long term"},
	}))
	f.service.On("ImportAnnotations", mock.Anything, mock.MatchedBy(func(records []holdings.NormalizedAsset) bool {
		return len(records) == 1 && records[0].MyAssetType == "long term"
	})).Return(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/import.csv", &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":1,"changed":1}`, rec.Body.String())
}

func TestImportCSV_BadHeader(t *testing.T) {
	f := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/import.csv", strings.NewReader("a,b\n1,2\n"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnnotateAsset(t *testing.T) {
	f := setupRouter(t)
	kind := "emergency fund"
	f.service.On("Annotate", mock.Anything, "42", holdings.Annotation{MyAssetType: &kind}).
		Return(&holdings.Cache{Assets: []holdings.NormalizedAsset{{ID: "42", MyAssetType: kind}}}, nil)

	rec := f.do(http.MethodPatch, "/api/v1/assets/42", `{"myAssetType":"emergency fund"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnnotateAsset_StrictKeyWithSlashes(t *testing.T) {
	f := setupRouter(t)
	envelope := "retirement"
	key := "PEA/acc-1/security/11"
	f.service.On("Annotate", mock.Anything, key, holdings.Annotation{VirtualEnvelop: &envelope}).
		Return(&holdings.Cache{}, nil)

	rec := f.do(http.MethodPatch, "/api/v1/assets/"+key, `{"virtual_envelop":"retirement"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnnotateAsset_NotFound(t *testing.T) {
	f := setupRouter(t)
	kind := "x"
	f.service.On("Annotate", mock.Anything, "missing", holdings.Annotation{MyAssetType: &kind}).
		Return(nil, apperrors.NotFound("asset missing"))

	rec := f.do(http.MethodPatch, "/api/v1/assets/missing", `{"myAssetType":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnnotateAsset_UnknownField(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodPatch, "/api/v1/assets/42", `{"notes":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovers(t *testing.T) {
	f := setupRouter(t)
	f.service.On("Movers", mock.Anything, history.RangeWeek).Return(&history.Report{
		Range: history.RangeWeek,
		Assets: history.Ranking{
			Gainers: []history.Mover{{Key: "1", Label: "Bitcoin", Change: decimal.NewFromInt(50)}},
			Losers:  []history.Mover{},
		},
	}, nil)

	rec := f.do(http.MethodGet, "/api/v1/movers?range=WEEK", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "week", body["range"])
}

func TestMovers_DefaultsToLastSync(t *testing.T) {
	f := setupRouter(t)
	f.service.On("Movers", mock.Anything, history.RangeLastSync).
		Return(nil, apperrors.InsufficientData("Not enough history yet", history.ErrInsufficientData))

	rec := f.do(http.MethodGet, "/api/v1/movers", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.ErrCodeInsufficientData, decodeBody(t, rec)["code"])
}

func TestMovers_UnknownRange(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodGet, "/api/v1/movers?range=decade", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Manual assets and settings
// =============================================================================

func TestCreateRealEstate(t *testing.T) {
	f := setupRouter(t)
	f.client.On("CreateRealEstate", mock.Anything, mock.MatchedBy(func(re finary.RealEstate) bool {
		return re.Category == "main" && re.UserEstimatedValue.Equal(decimal.NewFromInt(250000))
	})).Return(&finary.RealEstate{ID: "7", Category: "main", UserEstimatedValue: decimal.NewFromInt(250000)}, nil)

	rec := f.do(http.MethodPost, "/api/v1/real-estates", `{"category":"main","user_estimated_value":250000}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "7", decodeBody(t, rec)["id"])
}

func TestCreateRealEstate_MissingCategory(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodPost, "/api/v1/real-estates", `{"user_estimated_value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCrowdlending(t *testing.T) {
	f := setupRouter(t)
	f.client.On("DeleteCrowdlending", mock.Anything, "12").Return(nil)

	rec := f.do(http.MethodDelete, "/api/v1/crowdlendings/12", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateCrowdlending_ExpiredSession(t *testing.T) {
	f := setupRouter(t)
	f.client.On("UpdateCrowdlending", mock.Anything, "12", mock.Anything).
		Return(nil, &finary.APIError{Kind: finary.KindCredential, StatusCode: http.StatusUnauthorized})

	rec := f.do(http.MethodPut, "/api/v1/crowdlendings/12", `{"name":"Loan","current_price":"1000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateCurrency(t *testing.T) {
	f := setupRouter(t)
	f.client.On("UpdateDisplayCurrency", mock.Anything, "USD").Return(nil)

	rec := f.do(http.MethodPut, "/api/v1/settings/currency", `{"currency":"usd"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"currency":"USD"}`, rec.Body.String())
}

func TestUpdateCurrency_InvalidCode(t *testing.T) {
	f := setupRouter(t)

	rec := f.do(http.MethodPut, "/api/v1/settings/currency", `{"currency":"dollars"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCurrency_NotApplied(t *testing.T) {
	f := setupRouter(t)
	f.client.On("UpdateDisplayCurrency", mock.Anything, "CHF").Return(finary.ErrCurrencyNotApplied)

	rec := f.do(http.MethodPut, "/api/v1/settings/currency", `{"currency":"CHF"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// =============================================================================
// Middleware
// =============================================================================

func TestCORS_ExtensionOriginAllowed(t *testing.T) {
	f := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/assets", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "chrome-extension://abcdef", rec.Header().Get("Access-Control-Allow-Origin"))
}
