package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "ipo-compliance/internal/common/errors"
	"ipo-compliance/internal/common/logger"
	"ipo-compliance/internal/common/validation"
	"ipo-compliance/internal/compliance"
	"ipo-compliance/internal/models"
	"ipo-compliance/internal/store"
	"ipo-compliance/internal/subscription"
	"ipo-compliance/internal/valuation"
	"ipo-compliance/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeReconciler struct {
	got []compliance.Webhook
	res *compliance.Result
	err error
}

func (f *fakeReconciler) Reconcile(_ context.Context, w compliance.Webhook) (*compliance.Result, error) {
	f.got = append(f.got, w)
	return f.res, f.err
}

type fakeGenerations struct {
	gen *compliance.Generation
	err error
}

func (f *fakeGenerations) Start(_ context.Context, companyID, clientID string) (*compliance.Generation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}

type fakeQuota struct {
	company   *models.Company
	attempted []bool
}

func (f *fakeQuota) Check(_ context.Context, companyID string, attempted bool) (*models.Company, subscription.Decision, error) {
	f.attempted = append(f.attempted, attempted)
	if f.company == nil || f.company.ID != companyID {
		return nil, subscription.Decision{}, apperrors.NewCompanyNotFoundError("companyId: " + companyID)
	}
	return f.company, subscription.Evaluate(subscription.PlanBasic, f.company.GenerationNumber, attempted), nil
}

func (f *fakeQuota) CompanyByID(_ context.Context, companyID string) (*models.Company, error) {
	if f.company == nil || f.company.ID != companyID {
		return nil, store.ErrNotFound
	}
	return f.company, nil
}

type fakeReports struct {
	reports []models.ComplianceReport
}

func (f *fakeReports) Cached(_ context.Context, _, _ string) ([]models.ComplianceReport, bool, error) {
	return f.reports, f.reports != nil, nil
}

type fakeValuations struct {
	completed []valuation.Completion
	err       error
}

func (f *fakeValuations) Initials(_ context.Context, companyID, _ string, req valuation.InitialsRequest) (*models.IPOValuation, error) {
	return &models.IPOValuation{ID: "v-1", CompanyID: companyID, GenerationID: req.GenerationID}, f.err
}

func (f *fakeValuations) Calculate(_ context.Context, companyID, _ string, req valuation.CalculateRequest) (*models.IPOValuation, error) {
	return &models.IPOValuation{ID: "v-1", CompanyID: companyID, GenerationID: req.GenerationID}, f.err
}

func (f *fakeValuations) Complete(_ context.Context, c valuation.Completion) error {
	f.completed = append(f.completed, c)
	return f.err
}

// ==========================
// Test Helper Functions
// ==========================

type harness struct {
	router      *gin.Engine
	reconciler  *fakeReconciler
	generations *fakeGenerations
	quota       *fakeQuota
	reports     *fakeReports
	valuations  *fakeValuations
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := registry.Default()
	require.NoError(t, err)
	validator, err := validation.NewValidator(reg)
	require.NoError(t, err)

	h := &harness{
		reconciler:  &fakeReconciler{res: &compliance.Result{Outcome: compliance.OutcomeIntermediate, GenerationID: "g-1"}},
		generations: &fakeGenerations{gen: &compliance.Generation{CompanyID: "c-1", GenerationID: "g-2"}},
		quota:       &fakeQuota{company: &models.Company{ID: "c-1", UserID: "u-1", GenerationID: "g-1"}},
		reports:     &fakeReports{},
		valuations:  &fakeValuations{},
	}
	srv := NewServer(cfg, Deps{
		Reconciler:  h.reconciler,
		Generations: h.generations,
		Quota:       h.quota,
		Companies:   h.quota,
		Reports:     h.reports,
		Valuations:  h.valuations,
		Validator:   validator,
		Checks: map[string]ReadinessCheck{
			"postgres": func(context.Context) error { return nil },
		},
	}, logger.NewTestLogger(t))
	h.router = srv.Router()
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.7:4711"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "error body: %s", w.Body.String())
	return e["code"].(string)
}

var user1 = map[string]string{"X-User-ID": "u-1"}

// ==========================
// Webhooks
// ==========================

func TestAnalysisWebhook_Processed(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/webhooks/analysis", `{"generation_id":"g-1","status":"Processing","document_ids":["d1"]}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "intermediate", decode(t, w)["outcome"])
	require.Len(t, h.reconciler.got, 1)
	assert.Equal(t, []string{"d1"}, h.reconciler.got[0].DocumentIDs)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAnalysisWebhook_InvalidPayload(t *testing.T) {
	h := newHarness(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"missing generation", `{"status":"Completed","document_ids":[]}`},
		{"empty status", `{"generation_id":"g-1","status":"","document_ids":[]}`},
		{"ids not array", `{"generation_id":"g-1","status":"Completed","document_ids":"d1"}`},
		{"not json", `{generation_id`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/webhooks/analysis", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(apperrors.ErrCodeValidationFailed), errorCode(t, w))
		})
	}
	assert.Empty(t, h.reconciler.got)
}

func TestAnalysisWebhook_ErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewUserNotFoundError("c-1"), http.StatusNotFound},
		{apperrors.NewBackendSessionError(errors.New("refused")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := newHarness(t, Config{})
		h.reconciler.err = tt.err
		h.reconciler.res = nil

		w := h.do(http.MethodPost, "/api/webhooks/analysis", `{"generation_id":"g-1","status":"Completed","document_ids":["d1"]}`, nil)
		assert.Equal(t, tt.want, w.Code)
		if tt.want == http.StatusInternalServerError {
			assert.NotContains(t, w.Body.String(), "boom")
		}
	}
}

func TestWebhooks_RateLimited(t *testing.T) {
	h := newHarness(t, Config{WebhookRPS: 1, WebhookBurst: 2})
	body := `{"generation_id":"g-1","status":"Processing","document_ids":[]}`

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/webhooks/analysis", body, nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/webhooks/analysis", body, nil).Code)
	w := h.do(http.MethodPost, "/api/webhooks/analysis", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))
}

func TestValuationWebhook(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/webhooks/valuation", `{"company_id":"c-1","generation_id":"g-1","output_json":{"value":1}}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.valuations.completed, 1)
	assert.JSONEq(t, `{"value":1}`, string(h.valuations.completed[0].OutputJSON))

	h.valuations.err = apperrors.NewValuationNotFoundError("c-1", "g-9")
	w = h.do(http.MethodPost, "/api/webhooks/valuation", `{"company_id":"c-1","generation_id":"g-9","output_json":{}}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/webhooks/valuation", `{"company_id":"c-1","generation_id":"g-9"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ==========================
// Company routes
// ==========================

func TestCompanyRoutes_RequireClientID(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodGet, "/api/companies/c-1/generation-quota", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeMissingClientID), errorCode(t, w))

	w = h.do(http.MethodGet, "/api/companies/c-1/generation-quota?clientId=u-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerationQuota_UpgradePromptFollowsAttempt(t *testing.T) {
	h := newHarness(t, Config{})
	h.quota.company.GenerationNumber = 1

	w := h.do(http.MethodGet, "/api/companies/c-1/generation-quota", "", user1)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, false, body["showUpgrade"])

	w = h.do(http.MethodGet, "/api/companies/c-1/generation-quota?attempted=true", "", user1)
	body = decode(t, w)
	assert.Equal(t, true, body["showUpgrade"])
	assert.Equal(t, "growth", body["upgradeTo"])
	assert.Equal(t, []bool{false, true}, h.quota.attempted)
}

func TestGenerationQuota_ForeignCompanyIs404(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodGet, "/api/companies/c-1/generation-quota", "", map[string]string{"X-User-ID": "u-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartGeneration(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/companies/c-1/generations", "", user1)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "g-2", decode(t, w)["generationId"])

	h.generations.err = apperrors.NewGenerationLimitReachedError("basic", 1).
		WithMetadata("quota", subscription.Evaluate(subscription.PlanBasic, 1, true))
	w = h.do(http.MethodPost, "/api/companies/c-1/generations", "", user1)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	meta := decode(t, w)["error"].(map[string]interface{})["metadata"].(map[string]interface{})
	assert.Equal(t, "growth", meta["quota"].(map[string]interface{})["upgradeTo"])

	h.generations.err = apperrors.NewGenerationInProgressError("g-1")
	w = h.do(http.MethodPost, "/api/companies/c-1/generations", "", user1)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestComplianceStatus(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodGet, "/api/companies/c-1/compliance", "", user1)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["cached"])

	score := 90.0
	h.reports.reports = []models.ComplianceReport{{DocumentID: "d1", GenerationID: "g-1", Score: &score}}
	w = h.do(http.MethodGet, "/api/companies/c-1/compliance", "", user1)
	body := decode(t, w)
	assert.Equal(t, true, body["cached"])
	assert.Len(t, body["reports"], 1)

	w = h.do(http.MethodGet, "/api/companies/c-9/compliance", "", user1)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValuationRoutes(t *testing.T) {
	h := newHarness(t, Config{})

	w := h.do(http.MethodPost, "/api/companies/c-1/valuations/initials",
		`{"generation_id":"g-1","narrative":{"a":1},"financials":{"b":2}}`, user1)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/api/companies/c-1/valuations/initials", `{"generation_id":"g-1"}`, user1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/companies/c-1/valuations/calculate", `{"generation_id":"g-1"}`, user1)
	assert.Equal(t, http.StatusOK, w.Code)

	h.valuations.err = apperrors.NewBackendTimeoutError("valuation", context.DeadlineExceeded)
	w = h.do(http.MethodPost, "/api/companies/c-1/valuations/calculate", `{"generation_id":"g-1"}`, user1)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

// ==========================
// Operational routes
// ==========================

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, Config{Version: "1.2.3"})

	w := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", decode(t, w)["version"])

	w = h.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady_FailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(Config{}, Deps{Checks: map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}}, logger.NewNoOpLogger())

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), Recovery(logger.NewNoOpLogger()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}
