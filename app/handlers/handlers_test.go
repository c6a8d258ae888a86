package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedirectFlow struct {
	out      businessflow.RedirectOutcome
	clickIDs []string
}

func (f *fakeRedirectFlow) Resolve(_ context.Context, clickID string, _ *businessflow.ClientMetadata) businessflow.RedirectOutcome {
	f.clickIDs = append(f.clickIDs, clickID)
	return f.out
}

type fakeClickFlow struct {
	recordErr error
	getErr    error
	recorded  *dto.RecordClickRequest
}

func (f *fakeClickFlow) Record(_ context.Context, req *dto.RecordClickRequest) (*dto.RecordClickResponse, error) {
	f.recorded = req
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return &dto.RecordClickResponse{ClickID: "c-1", TrackedURL: "https://go.example.com/r/c-1"}, nil
}

func (f *fakeClickFlow) GetClick(_ context.Context, clickID string) (*dto.ClickRecordDTO, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dto.ClickRecordDTO{ClickID: clickID, Status: "pending"}, nil
}

type fakeCorrelationFlow struct {
	runErr error
	runReq *dto.CorrelateRequest
}

func (f *fakeCorrelationFlow) Run(_ context.Context, req *dto.CorrelateRequest) (*dto.CorrelationSummaryResponse, error) {
	f.runReq = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &dto.CorrelationSummaryResponse{RunID: "run-1", SellerID: req.SellerID, Correlated: 2}, nil
}

func (f *fakeCorrelationFlow) ListRuns(_ context.Context, _ *dto.ListCorrelationRunsRequest) (*dto.ListCorrelationRunsResponse, error) {
	return &dto.ListCorrelationRunsResponse{Items: []dto.CorrelationRunDTO{{RunID: "run-1"}}}, nil
}

type fakeReportFlow struct {
	err error
	req *dto.ExportConversionsRequest
}

func (f *fakeReportFlow) ExportConversions(_ context.Context, req *dto.ExportConversionsRequest) (*dto.ExportConversionsResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ExportConversionsResponse{Filename: "conversions_20260303_20260310.xlsx", Data: []byte("xlsx"), Rows: 1}, nil
}

type fakeBotAuthFlow struct {
	refreshErr error
	refreshed  string
}

func (f *fakeBotAuthFlow) Verify(context.Context, *dto.BotLoginRequest, *businessflow.ClientMetadata) (*dto.BotLoginResponse, error) {
	return &dto.BotLoginResponse{}, nil
}

func (f *fakeBotAuthFlow) Refresh(_ context.Context, req *dto.BotRefreshRequest) (*dto.BotLoginResponse, error) {
	f.refreshed = req.RefreshToken
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &dto.BotLoginResponse{Session: dto.BotSessionDTO{AccessToken: "new-access", TokenType: "Bearer"}}, nil
}

func (f *fakeBotAuthFlow) EnsureBot(context.Context, string, string, int) error {
	return nil
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, dto.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var parsed dto.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp, parsed
}

func errorCode(t *testing.T, resp dto.APIResponse) string {
	t.Helper()
	detail, ok := resp.Error.(map[string]any)
	require.True(t, ok, "error detail is present")
	code, _ := detail["code"].(string)
	return code
}

func TestRedirectHandler(t *testing.T) {
	flow := &fakeRedirectFlow{out: businessflow.RedirectOutcome{URL: "https://articulo.mercadolibre.com.mx/MLM-1", Result: businessflow.RedirectFirstClick}}
	app := fiber.New()
	app.Get("/r/:clickId", NewRedirectHandler(flow).Redirect)

	resp, _ := doRequest(t, app, http.MethodGet, "/r/abc123", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://articulo.mercadolibre.com.mx/MLM-1", resp.Header.Get("Location"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, []string{"abc123"}, flow.clickIDs)
}

func TestClickHandler_Record(t *testing.T) {
	flow := &fakeClickFlow{}
	app := fiber.New()
	app.Post("/clicks", NewClickHandler(flow).Record)

	resp, body := doRequest(t, app, http.MethodPost, "/clicks", `{"userId":"u-1","originalUrl":"https://articulo.mercadolibre.com.mx/MLM-123456789"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, body.Success)
	require.NotNil(t, flow.recorded)
	assert.Equal(t, "u-1", flow.recorded.UserID)

	resp, body = doRequest(t, app, http.MethodPost, "/clicks", `{"userId":"u-1","originalUrl":"not a url"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	resp, body = doRequest(t, app, http.MethodPost, "/clicks", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, body))
}

func TestClickHandler_RecordErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing user", businessflow.NewBusinessError("USER_ID_REQUIRED", "user id is required", businessflow.ErrUserIDRequired), http.StatusBadRequest},
		{"store down", businessflow.NewBusinessError("CLICK_RECORD_FAILED", "failed", businessflow.ErrClickStoreNotAvailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/clicks", NewClickHandler(&fakeClickFlow{recordErr: tc.err}).Record)

			resp, body := doRequest(t, app, http.MethodPost, "/clicks", `{"userId":"u-1","originalUrl":"https://example.com/x"}`)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.False(t, body.Success)
		})
	}
}

func TestClickHandler_Get(t *testing.T) {
	app := fiber.New()
	app.Get("/clicks/:clickId", NewClickHandler(&fakeClickFlow{
		getErr: businessflow.NewBusinessError("CLICK_NOT_FOUND", "Click not found", businessflow.ErrClickNotFound),
	}).Get)

	resp, body := doRequest(t, app, http.MethodGet, "/clicks/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CLICK_NOT_FOUND", errorCode(t, body))

	ok := fiber.New()
	ok.Get("/clicks/:clickId", NewClickHandler(&fakeClickFlow{}).Get)
	resp, body = doRequest(t, ok, http.MethodGet, "/clicks/c-9", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "c-9", body.Data.(map[string]any)["click_id"])
}

func TestCorrelationHandler_Correlate(t *testing.T) {
	flow := &fakeCorrelationFlow{}
	app := fiber.New()
	app.Post("/correlations", NewCorrelationHandler(flow, 0).Correlate)

	resp, body := doRequest(t, app, http.MethodPost, "/correlations", `{"sellerId":"s-1","lookbackHours":24,"dryRun":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "run-1", body.Data.(map[string]any)["runId"])
	require.NotNil(t, flow.runReq)
	assert.True(t, flow.runReq.DryRun)
	assert.Equal(t, 24, *flow.runReq.LookbackHours)

	resp, body = doRequest(t, app, http.MethodPost, "/correlations", `{"lookbackHours":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	busy := fiber.New()
	busy.Post("/correlations", NewCorrelationHandler(&fakeCorrelationFlow{
		runErr: businessflow.NewBusinessError("CORRELATION_RUN_IN_PROGRESS", "busy", businessflow.ErrCorrelationRunInProgress),
	}, 0).Correlate)
	resp, body = doRequest(t, busy, http.MethodPost, "/correlations", `{"sellerId":"s-1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CORRELATION_RUN_IN_PROGRESS", errorCode(t, body))
}

func TestCorrelationHandler_ListRuns(t *testing.T) {
	app := fiber.New()
	app.Get("/runs", NewCorrelationHandler(&fakeCorrelationFlow{}, 0).ListRuns)

	resp, body := doRequest(t, app, http.MethodGet, "/runs?limit=5", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Data.(map[string]any)["items"], 1)

	resp, _ = doRequest(t, app, http.MethodGet, "/runs?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportHandler_ExportConversions(t *testing.T) {
	flow := &fakeReportFlow{}
	app := fiber.New()
	app.Get("/conversions", NewReportHandler(flow).ExportConversions)

	resp, _ := doRequest(t, app, http.MethodGet, "/conversions?from=2026-03-03T00:00:00Z&to=2026-03-10T00:00:00Z&min_tier=medium", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=conversions_20260303_20260310.xlsx", resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(data))
	require.NotNil(t, flow.req.MinTier)
	assert.Equal(t, "medium", *flow.req.MinTier)

	resp, body := doRequest(t, app, http.MethodGet, "/conversions?from=2026-03-03T00:00:00Z&to=2026-03-10T00:00:00Z&min_tier=great", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	bad := fiber.New()
	bad.Get("/conversions", NewReportHandler(&fakeReportFlow{
		err: businessflow.NewBusinessError("START_DATE_AFTER_END_DATE", "from must be before to", businessflow.ErrStartDateAfterEndDate),
	}).ExportConversions)
	resp, body = doRequest(t, bad, http.MethodGet, "/conversions?from=2026-03-10T00:00:00Z&to=2026-03-03T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "START_DATE_AFTER_END_DATE", errorCode(t, body))
}

func TestAuthBotHandler_Refresh(t *testing.T) {
	flow := &fakeBotAuthFlow{}
	app := fiber.New()
	app.Post("/refresh", NewAuthBotHandler(flow).Refresh)

	resp, body := doRequest(t, app, http.MethodPost, "/refresh", `{"refresh_token":"old-refresh"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "old-refresh", flow.refreshed)

	resp, body = doRequest(t, app, http.MethodPost, "/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	flow.refreshErr = businessflow.NewBusinessError("BOT_REFRESH_INVALID", "Invalid refresh token", businessflow.ErrInvalidRefresh)
	resp, body = doRequest(t, app, http.MethodPost, "/refresh", `{"refresh_token":"access-token"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "BOT_REFRESH_FAILED", errorCode(t, body))
}
