package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/actions"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/emit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/metrics"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ratelimit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
	butil "github.com/tallesnicacio/bizflow-pro-sub000/internal/testutil"
)

type testEnv struct {
	echo      *echo.Echo
	store     *store.Store
	messenger *butil.RecordingMessenger
	metrics   *metrics.Collector
}

func setupTestServer(t *testing.T, limit int) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := &butil.RecordingMessenger{}
	collector := metrics.NewCollector()
	eng := engine.New(st, actions.NewDefaultRegistry(m, st), engine.WithObserver(collector))

	mem := ratelimit.NewMemoryStore(time.Hour, time.Hour)
	t.Cleanup(func() { mem.Close() })
	limiter, err := ratelimit.New(mem, limit, time.Minute, ratelimit.WithPrefix("events"))
	require.NoError(t, err)

	srv := NewServer(st, emit.New(eng), WithLimiter(limiter), WithMetrics(collector))
	return &testEnv{echo: srv.Echo(), store: st, messenger: m, metrics: collector}
}

func (env *testEnv) do(t *testing.T, method, path, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tenant != "" {
		req.Header.Set(HeaderTenantID, tenant)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

const welcomeRule = `{
	"name": "Welcome",
	"trigger": {"type": "CONTACT_CREATED", "conditions": {"source": "web"}},
	"actions": [
		{"type": "SEND_EMAIL", "config": {"subject": "Welcome", "body": "<p>Hi</p>"}},
		{"type": "ADD_TAG", "config": {"tag": "lead"}}
	]
}`

func TestRulesCRUD(t *testing.T) {
	env := setupTestServer(t, 10)

	rec := env.do(t, http.MethodPost, "/api/v1/rules", "T1", welcomeRule)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created ir.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "T1", created.TenantID)
	assert.True(t, created.IsActive)
	require.Len(t, created.Actions, 2)
	assert.Equal(t, 0, created.Actions[0].Order)
	assert.Equal(t, 1, created.Actions[1].Order)
	assert.Equal(t, ir.SendEmailConfig{Subject: "Welcome", Body: "<p>Hi</p>"}, created.Actions[0].Config)

	rec = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "T1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "T2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "rules are tenant scoped")
	assert.Equal(t, "rule not found", decodeProblem(t, rec).Detail)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", "T1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ir.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodPut, "/api/v1/rules/"+created.ID, "T1", `{
		"name": "Welcome v2",
		"is_active": false,
		"trigger": {"type": "CONTACT_CREATED"},
		"actions": [{"type": "CREATE_TASK", "config": {"title": "Call"}, "order": 5}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := env.store.GetRule(context.Background(), "T1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome v2", got.Name)
	assert.False(t, got.IsActive)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, 5, got.Actions[0].Order)

	rec = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/active", "T1", `{"active": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled ir.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.True(t, toggled.IsActive)

	rec = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "T1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "T1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRuleValidation(t *testing.T) {
	env := setupTestServer(t, 10)

	rec := env.do(t, http.MethodPost, "/api/v1/rules", "T1", `{
		"name": "",
		"trigger": {"type": "DEAL_WON"},
		"actions": [{"type": "ADD_TAG", "config": {"tag": 7}}]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	p := decodeProblem(t, rec)
	assert.Equal(t, 422, p.Status)
	assert.Equal(t, "/api/v1/rules", p.Instance)
	codes := make([]string, len(p.Errors))
	for i, e := range p.Errors {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{compiler.ErrRuleNameEmpty, compiler.ErrInvalidTrigger, compiler.ErrInvalidConfig}, codes)

	rules, err := env.store.ListRules(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSetActiveBadBody(t *testing.T) {
	env := setupTestServer(t, 10)
	rec := env.do(t, http.MethodPost, "/api/v1/rules/x/active", "T1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantHeaderRequired(t *testing.T) {
	env := setupTestServer(t, 10)

	rec := env.do(t, http.MethodGet, "/api/v1/rules", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Detail, HeaderTenantID)
}

func TestPostEvent(t *testing.T) {
	env := setupTestServer(t, 10)
	rec := env.do(t, http.MethodPost, "/api/v1/rules", "T1", welcomeRule)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/events", "T1", `{
		"type": "CONTACT_CREATED",
		"data": {"contactId": "C1", "contactEmail": "a@b.com", "source": "web"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary engine.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Matched)
	require.Len(t, summary.Runs, 1)
	require.Len(t, summary.Runs[0].Results, 2)
	assert.True(t, summary.Runs[0].Results[0].Success)
	assert.True(t, summary.Runs[0].Results[1].Success)

	sends := env.messenger.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "a@b.com", sends[0].To)

	tags, err := env.store.ListContactTags(context.Background(), "T1", "C1")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "lead", tags[0].Name)

	rec = env.do(t, http.MethodPost, "/api/v1/events", "T1", `{"type": "CONTACT_CREATED", "data": {"source": "ads"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Zero(t, summary.Matched, "conditions are strict equality")

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, rec.Body.String(), `bizflow_events_total{type="CONTACT_CREATED"} 2`)
}

func TestPostEventInvalid(t *testing.T) {
	env := setupTestServer(t, 10)

	rec := env.do(t, http.MethodPost, "/api/v1/events", "T1", `{"type": "DEAL_WON"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/events", "T1", `{"type": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEventRateLimited(t *testing.T) {
	env := setupTestServer(t, 2)
	body := `{"type": "TAG_ADDED", "data": {}}`

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/events", "T1", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/events", "T1", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 429, decodeProblem(t, rec).Status)

	count, err := testutil.GatherAndCount(env.metrics.Registry(), "bizflow_rate_limited_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec = env.do(t, http.MethodGet, "/api/v1/rules", "T1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "only the events route is limited")
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t, 10)

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
