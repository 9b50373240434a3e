package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"order-intake-gateway/internal/adapter/http/middleware"
	redisStore "order-intake-gateway/internal/adapter/storage/redis"
	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/internal/core/ports/mocks"
	"order-intake-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testToken = "tenant-token"

type testEnv struct {
	router   *gin.Engine
	tenantID uuid.UUID
	ingest   *mocks.MockIngestService
	conns    *mocks.MockConnectionService
	rules    *mocks.MockRuleService
	ledger   *mocks.MockAttemptLedger
	audit    *mocks.MockAuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	env := &testEnv{
		tenantID: uuid.New(),
		ingest:   mocks.NewMockIngestService(ctrl),
		conns:    mocks.NewMockConnectionService(ctrl),
		rules:    mocks.NewMockRuleService(ctrl),
		ledger:   mocks.NewMockAttemptLedger(ctrl),
		audit:    mocks.NewMockAuditService(ctrl),
	}

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Validate(testToken).Return(&ports.TokenClaims{TenantID: env.tenantID}, nil).AnyTimes()
	tokens.EXPECT().Validate(gomock.Not(testToken)).Return(nil, assert.AnError).AnyTimes()

	env.router = SetupRouter(RouterDeps{
		IngestSvc:      env.ingest,
		ConnectionSvc:  env.conns,
		RuleSvc:        env.rules,
		Ledger:         env.ledger,
		TokenSvc:       tokens,
		AuditSvc:       env.audit,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("# metrics")) }),
		MaxWebhookBody: 1024,
		Logger:         zerolog.Nop(),
	})
	gin.SetMode(gin.TestMode)
	return env
}

func (e *testEnv) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error_code"].(string)
	return code
}

// --- Webhook ---

func TestWebhook_PassesRawRequestToPipeline(t *testing.T) {
	env := newTestEnv(t)
	attemptID := uuid.New()
	body := []byte(`{"id": 1001, "total_price": "24.50"}`)

	env.ingest.EXPECT().Ingest(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WebhookRequest) ports.WebhookResult {
			assert.Equal(t, domain.PlatformShopify, req.Platform)
			assert.Equal(t, "wh_abc123", req.Discriminator)
			assert.Equal(t, body, req.Body, "body must reach the verifier byte for byte")
			assert.Equal(t, "sig==", req.Headers["X-Shopify-Hmac-Sha256"])
			assert.False(t, req.ReceivedAt.IsZero())
			return ports.WebhookResult{HTTPStatus: http.StatusOK, Status: "success", AttemptID: attemptID}
		})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/Shopify/wh_abc123", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", "sig==")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success","attempt_id":"`+attemptID.String()+`"}`, w.Body.String())
}

func TestWebhook_ResultStatusIsForwarded(t *testing.T) {
	cases := []ports.WebhookResult{
		{HTTPStatus: http.StatusOK, Status: "rejected-duplicate"},
		{HTTPStatus: http.StatusUnauthorized, Status: "signature-invalid"},
		{HTTPStatus: http.StatusNotFound, Status: "connection-not-found"},
		{HTTPStatus: http.StatusUnprocessableEntity, Status: "validation-failed"},
		{HTTPStatus: http.StatusInternalServerError, Status: "failed", Retryable: true},
	}
	for _, res := range cases {
		t.Run(res.Status, func(t *testing.T) {
			env := newTestEnv(t)
			res.AttemptID = uuid.New()
			env.ingest.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(res)

			w := env.do(http.MethodPost, "/webhooks/youcan/wh_1", []byte(`{}`), false)
			assert.Equal(t, res.HTTPStatus, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, res.Status, body["status"])
			assert.Equal(t, res.AttemptID.String(), body["attempt_id"])
			if res.Retryable {
				assert.Equal(t, true, body["retryable"])
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	attemptID := uuid.New()

	env.ingest.EXPECT().Reject(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WebhookRequest, rej ports.WebhookRejection) ports.WebhookResult {
			assert.Equal(t, "wh_1", req.Discriminator)
			assert.LessOrEqual(t, len(req.Body), 1024)
			assert.Equal(t, domain.AttemptStatusValidationFailed, rej.Status)
			assert.Equal(t, http.StatusRequestEntityTooLarge, rej.HTTPStatus)
			assert.Contains(t, rej.Detail, "1024")
			return ports.WebhookResult{HTTPStatus: rej.HTTPStatus, Status: string(rej.Status), AttemptID: attemptID}
		})

	w := env.do(http.MethodPost, "/webhooks/shopify/wh_1", []byte(strings.Repeat("x", 2048)), false)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"status":"validation-failed","attempt_id":"`+attemptID.String()+`"}`, w.Body.String())
}

func TestWebhook_MalformedDiscriminator(t *testing.T) {
	env := newTestEnv(t)
	attemptID := uuid.New()

	env.ingest.EXPECT().Reject(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WebhookRequest, rej ports.WebhookRejection) ports.WebhookResult {
			assert.Equal(t, domain.PlatformShopify, req.Platform)
			assert.Equal(t, "wh<script>", req.Discriminator)
			assert.Equal(t, domain.AttemptStatusConnectionNotFound, rej.Status)
			assert.Equal(t, http.StatusNotFound, rej.HTTPStatus)
			return ports.WebhookResult{HTTPStatus: rej.HTTPStatus, Status: string(rej.Status), AttemptID: attemptID}
		})

	w := env.do(http.MethodPost, "/webhooks/shopify/wh%3Cscript%3E", []byte(`{}`), false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"connection-not-found","attempt_id":"`+attemptID.String()+`"}`, w.Body.String())
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(_ context.Context, _ string, limit int64, _ time.Duration) (*redisStore.RateLimitResult, error) {
	return &redisStore.RateLimitResult{Allowed: false, Limit: limit, ResetAt: time.Now().Add(42 * time.Second).Unix()}, nil
}

func TestWebhook_ThrottledIsRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	ingest := mocks.NewMockIngestService(ctrl)
	attemptID := uuid.New()

	ingest.EXPECT().Reject(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WebhookRequest, rej ports.WebhookRejection) ports.WebhookResult {
			assert.Equal(t, "wh_1", req.Discriminator)
			assert.Equal(t, domain.AttemptStatusFailed, rej.Status)
			assert.Equal(t, http.StatusTooManyRequests, rej.HTTPStatus)
			assert.True(t, rej.Retryable)
			return ports.WebhookResult{HTTPStatus: rej.HTTPStatus, Status: string(rej.Status), AttemptID: attemptID, Retryable: true}
		})

	router := SetupRouter(RouterDeps{
		IngestSvc:      ingest,
		TokenSvc:       mocks.NewMockTokenService(ctrl),
		RateLimitStore: denyAllLimiter{},
		RateLimitRules: map[string]middleware.RateLimitRule{"webhooks": {Limit: 1, Window: time.Minute}},
		Logger:         zerolog.Nop(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/woocommerce/wh_1", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"status":"failed","attempt_id":"`+attemptID.String()+`","retryable":true}`, w.Body.String())
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 30, "limiter's reset time wins over the default hint")
}

// --- Tenant API auth ---

func TestTenantAPI_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/integrations", "/api/v1/dedup-rules", "/api/v1/attempts"} {
		w := env.do(http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

// --- Integrations ---

func TestIntegrations_List(t *testing.T) {
	env := newTestEnv(t)
	errMsg := "signature mismatch"
	conns := []domain.Connection{
		{ID: uuid.New(), TenantID: env.tenantID, Platform: domain.PlatformShopify, Method: domain.ConnectionMethodOAuth,
			Status: domain.ConnectionStatusConnected, WebhookKey: "wh_1", OrdersSynced: 12},
		{ID: uuid.New(), TenantID: env.tenantID, Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodManual,
			Status: domain.ConnectionStatusConnected, WebhookKey: "wh_2", ConsecutiveErrs: 2, LastError: &errMsg},
	}
	env.conns.EXPECT().List(gomock.Any(), env.tenantID).Return(conns, nil)
	env.conns.EXPECT().WebhookURL(gomock.Any()).DoAndReturn(func(c *domain.Connection) string {
		return "https://gw.example.com/webhooks/" + string(c.Platform) + "/" + c.WebhookKey
	}).Times(2)

	w := env.do(http.MethodGet, "/api/v1/integrations", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var items []map[string]any
	decodeData(t, w, &items)
	require.Len(t, items, 2)
	assert.Equal(t, "healthy", items[0]["health"])
	assert.Equal(t, float64(12), items[0]["orders_synced"])
	assert.Equal(t, "https://gw.example.com/webhooks/shopify/wh_1", items[0]["webhook_url"])
	assert.Equal(t, "degraded", items[1]["health"])
	assert.Equal(t, errMsg, items[1]["last_error"])
	assert.NotContains(t, w.Body.String(), "access_token")
}

func TestIntegrations_Authorize(t *testing.T) {
	env := newTestEnv(t)
	locationID := uuid.New()

	env.conns.EXPECT().Authorize(gomock.Any(), ports.AuthorizeRequest{
		TenantID:   env.tenantID,
		LocationID: locationID,
		Platform:   domain.PlatformShopify,
		Shop:       "demo.myshopify.com",
	}).Return("https://demo.myshopify.com/admin/oauth/authorize?state=s", nil)
	env.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionAuthorize, e.Action)
	})

	w := env.do(http.MethodPost, "/api/v1/integrations/shopify/authorize",
		map[string]string{"location_id": locationID.String(), "shop": "demo.myshopify.com"}, true)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	decodeData(t, w, &resp)
	assert.Contains(t, resp["authorize_url"], "state=s")
}

func TestIntegrations_Authorize_Rejections(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/integrations/etsy/authorize", map[string]string{"location_id": uuid.NewString()}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "VAL_004", errorCode(t, w))

	w = env.do(http.MethodPost, "/api/v1/integrations/shopify/authorize", map[string]string{"location_id": "nope"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", errorCode(t, w))

	env.conns.EXPECT().Authorize(gomock.Any(), gomock.Any()).
		Return("", apperror.ErrMethodNotSupported("woocommerce", "oauth"))
	w = env.do(http.MethodPost, "/api/v1/integrations/woocommerce/authorize", map[string]string{"location_id": uuid.NewString()}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CFG_004", errorCode(t, w))
}

func TestIntegrations_Callback(t *testing.T) {
	env := newTestEnv(t)
	conn := &domain.Connection{ID: uuid.New(), TenantID: env.tenantID, Platform: domain.PlatformYouCan,
		Status: domain.ConnectionStatusConnected, WebhookKey: "wh_9"}

	env.conns.EXPECT().CompleteOAuth(gomock.Any(), ports.CallbackRequest{
		Platform: domain.PlatformYouCan, Code: "c0de", State: "st", Shop: "",
	}).Return(conn, nil)
	env.conns.EXPECT().WebhookURL(conn).Return("https://gw.example.com/webhooks/youcan/wh_9")
	env.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionConnectIntegration, e.Action)
		require.NotNil(t, e.TenantID)
		assert.Equal(t, env.tenantID, *e.TenantID)
		assert.Equal(t, conn.ID.String(), e.ResourceID)
	})

	w := env.do(http.MethodGet, "/integrations/youcan/callback?code=c0de&state=st", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	decodeData(t, w, &resp)
	assert.Equal(t, "connected", resp["status"])
}

func TestIntegrations_Callback_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/integrations/youcan/callback?state=st", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/integrations/youcan/callback?error=access_denied", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.conns.EXPECT().CompleteOAuth(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrStateReplayed())
	w = env.do(http.MethodGet, "/integrations/youcan/callback?code=c&state=used", nil, false)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTH_005", errorCode(t, w))
}

func TestIntegrations_Link(t *testing.T) {
	env := newTestEnv(t)
	locationID := uuid.New()
	conn := &domain.Connection{ID: uuid.New(), TenantID: env.tenantID, Platform: domain.PlatformWooCommerce}

	env.conns.EXPECT().Link(gomock.Any(), ports.LinkRequest{
		TenantID:        env.tenantID,
		LocationID:      locationID,
		Platform:        domain.PlatformWooCommerce,
		StoreIdentifier: "https://shop.example.com",
	}).Return(&ports.LinkResult{
		Connection:    conn,
		WebhookURL:    "https://gw.example.com/webhooks/woocommerce/wh_5",
		WebhookSecret: "s3cret",
	}, nil)
	env.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	w := env.do(http.MethodPost, "/api/v1/integrations/woocommerce/link",
		map[string]string{"location_id": locationID.String(), "store_identifier": "https://shop.example.com/"}, true)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	decodeData(t, w, &resp)
	assert.Equal(t, conn.ID.String(), resp["connection_id"])
	assert.Equal(t, "s3cret", resp["webhook_secret"])
}

func TestIntegrations_Disconnect(t *testing.T) {
	env := newTestEnv(t)
	connID := uuid.New()

	env.conns.EXPECT().Disconnect(gomock.Any(), env.tenantID, connID).Return(nil)
	env.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionDisconnect, e.Action)
		assert.Equal(t, connID.String(), e.ResourceID)
	})

	w := env.do(http.MethodPost, "/api/v1/connections/"+connID.String()+"/disconnect", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	env.conns.EXPECT().Disconnect(gomock.Any(), env.tenantID, gomock.Any()).Return(apperror.ErrNotFound("Connection"))
	w = env.do(http.MethodPost, "/api/v1/connections/"+uuid.NewString()+"/disconnect", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/connections/not-a-uuid/disconnect", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Dedup rules ---

func TestDedupRules_Get(t *testing.T) {
	env := newTestEnv(t)
	env.rules.EXPECT().Get(gomock.Any(), env.tenantID).Return(&domain.RuleSet{
		TenantID:      env.tenantID,
		DefaultWindow: domain.TimeWindow{Value: 24, Unit: domain.UnitHours},
	}, nil)

	w := env.do(http.MethodGet, "/api/v1/dedup-rules", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var set domain.RuleSet
	decodeData(t, w, &set)
	assert.False(t, set.Enabled)
	assert.Equal(t, 24, set.DefaultWindow.Value)
}

func TestDedupRules_Replace(t *testing.T) {
	env := newTestEnv(t)

	env.rules.EXPECT().Replace(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, set *domain.RuleSet) (*domain.RuleSet, error) {
			assert.Equal(t, env.tenantID, set.TenantID)
			require.Len(t, set.Rules, 1)
			assert.Equal(t, domain.OperatorAll, set.Rules[0].Operator)
			assert.Equal(t, []domain.RuleField{domain.FieldCustomerPhone, domain.FieldProductID}, set.Rules[0].Fields)
			set.UpdatedAt = time.Now()
			return set, nil
		})
	env.audit.EXPECT().Log(gomock.Any(), gomock.Any())

	w := env.do(http.MethodPut, "/api/v1/dedup-rules", map[string]any{
		"enabled": true,
		"rules": []map[string]any{{
			"name": "same phone and product", "fields": []string{"customer_phone", "product_id"},
			"operator": "ALL", "active": true, "window": map[string]any{"value": 2, "unit": "days"},
		}},
	}, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDedupRules_Replace_Invalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/api/v1/dedup-rules", map[string]any{
		"enabled": true,
		"rules":   []map[string]any{{"name": "x", "fields": []string{"email"}, "operator": "ALL"}},
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.rules.EXPECT().Replace(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrInvalidRuleSet(assert.AnError))
	w = env.do(http.MethodPut, "/api/v1/dedup-rules", map[string]any{
		"enabled": true,
		"rules":   []map[string]any{{"name": "empty", "operator": "ANY", "active": true}},
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CFG_001", errorCode(t, w))
}

// --- Attempts ---

func TestAttempts_List(t *testing.T) {
	env := newTestEnv(t)
	connID := uuid.New()

	env.ledger.EXPECT().Search(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
			assert.Equal(t, env.tenantID, f.TenantID)
			require.NotNil(t, f.ConnectionID)
			assert.Equal(t, connID, *f.ConnectionID)
			require.NotNil(t, f.Status)
			assert.Equal(t, domain.AttemptStatusSignatureInvalid, *f.Status)
			assert.Equal(t, 10, f.Limit)
			return []domain.Attempt{{ID: uuid.New(), Status: domain.AttemptStatusSignatureInvalid}}, nil
		})

	w := env.do(http.MethodGet, "/api/v1/attempts?connection_id="+connID.String()+"&status=signature-invalid&limit=10", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Items []domain.Attempt `json:"items"`
		Count int              `json:"count"`
	}
	decodeData(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
}

func TestAttempts_List_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/attempts?connection_id=x", nil, true).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/attempts?limit=-3", nil, true).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/attempts?platform=magento", nil, true).Code)
}

func TestAttempts_List_PlatformFilter(t *testing.T) {
	env := newTestEnv(t)

	env.ledger.EXPECT().Search(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
			require.NotNil(t, f.Platform)
			assert.Equal(t, domain.PlatformYouCan, *f.Platform)
			assert.Nil(t, f.ConnectionID)
			return nil, nil
		})

	w := env.do(http.MethodGet, "/api/v1/attempts?platform=YouCan", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAttempts_Get_ScopedToTenant(t *testing.T) {
	env := newTestEnv(t)
	mine, theirs, unattributed := uuid.New(), uuid.New(), uuid.New()
	other := uuid.New()

	env.ledger.EXPECT().Get(gomock.Any(), mine).Return(&domain.Attempt{ID: mine, TenantID: &env.tenantID,
		Steps: []domain.AttemptStep{{Name: "verify-signature", Status: domain.StepStatusOK}}}, nil)
	env.ledger.EXPECT().Get(gomock.Any(), theirs).Return(&domain.Attempt{ID: theirs, TenantID: &other}, nil)
	env.ledger.EXPECT().Get(gomock.Any(), unattributed).Return(&domain.Attempt{ID: unattributed}, nil)

	w := env.do(http.MethodGet, "/api/v1/attempts/"+mine.String(), nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Attempt
	decodeData(t, w, &got)
	require.Len(t, got.Steps, 1)

	for _, id := range []uuid.UUID{theirs, unattributed} {
		w = env.do(http.MethodGet, "/api/v1/attempts/"+id.String(), nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

// --- Health / metrics / swagger ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string               { return s.name }

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	r.GET("/ok", HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis"}))
	r.GET("/degraded", HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis", err: assert.AnError}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/degraded", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestMetricsAndSwagger(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# metrics", w.Body.String())

	w = env.do(http.MethodGet, "/swagger", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Order Intake Gateway")

	w = env.do(http.MethodGet, "/swagger/spec", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	r := SetupRouter(RouterDeps{OpenAPISpec: []byte("openapi: 3.0.3"), Logger: zerolog.Nop()})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/spec", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "openapi: 3.0.3", w.Body.String())
}
