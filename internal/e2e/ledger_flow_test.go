package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts/accountstest"
	"github.com/odyssey-erp/core-ledger/internal/app"
	"github.com/odyssey-erp/core-ledger/internal/observability"
	"github.com/odyssey-erp/core-ledger/jobs"
	_ "github.com/odyssey-erp/core-ledger/testing"
)

type ledgerEnv struct {
	server  *httptest.Server
	repo    *accountstest.MemoryRepository
	audit   *accountstest.AuditRecorder
	metrics *observability.Metrics
	logger  *slog.Logger
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &ledgerEnv{
		repo:    accountstest.NewMemoryRepository(),
		audit:   &accountstest.AuditRecorder{},
		metrics: observability.NewMetrics(),
		logger:  logger,
	}
	factory := &accounts.Factory{
		Repo:     env.repo,
		Policies: accounts.NewPolicies(),
		Logger:   logger,
		Cache:    accounts.NewHierarchyCache(client, time.Minute, logger),
		Audit:    env.audit,
		Observer: env.metrics,
	}
	cfg := &app.Config{
		AppEnv:             "test",
		AppRequestTimeout:  5 * time.Second,
		DefaultTenantID:    "default-tenant",
		DefaultUserID:      "system",
		RateLimitPerMinute: 0,
	}
	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, factory, nil),
		Metrics:         env.metrics,
	})
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (e *ledgerEnv) call(t *testing.T, tenant, method, path, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if tenant != "" {
		req.Header.Set(app.HeaderTenantID, tenant)
	}
	req.Header.Set(app.HeaderUserID, "controller")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestLedgerChartLifecycle(t *testing.T) {
	env := newLedgerEnv(t)
	const tenant = "acme"

	var root accounts.AccountResponse
	require.Equal(t, http.StatusCreated, env.call(t, tenant, http.MethodPost, "/accounts",
		`{"code":"1000","name":"Current Assets","accountType":"ASSET"}`, &root))
	assert.Equal(t, "controller", root.CreatedBy)

	var hierarchy accounts.HierarchyResponse
	require.Equal(t, http.StatusOK, env.call(t, tenant, http.MethodGet, "/accounts/hierarchy", "", &hierarchy))
	require.Len(t, hierarchy.Accounts, 1)

	var cash accounts.AccountResponse
	require.Equal(t, http.StatusCreated, env.call(t, tenant, http.MethodPost, "/accounts",
		`{"code":"1000-10","name":"Cash on Hand","accountType":"ASSET","parentId":1}`, &cash))
	assert.Equal(t, 2, cash.Level)

	// The create bumped the cache version so the new child is visible.
	require.Equal(t, http.StatusOK, env.call(t, tenant, http.MethodGet, "/accounts/hierarchy", "", &hierarchy))
	require.Len(t, hierarchy.Accounts, 2)
	require.Len(t, hierarchy.Hierarchy, 1)
	require.Len(t, hierarchy.Hierarchy[0].Children, 1)

	// Another tenant sees an empty chart.
	var other accounts.HierarchyResponse
	require.Equal(t, http.StatusOK, env.call(t, "globex", http.MethodGet, "/accounts/hierarchy", "", &other))
	assert.Empty(t, other.Accounts)

	var validation accounts.ReparentValidation
	require.Equal(t, http.StatusOK, env.call(t, tenant, http.MethodPost, "/accounts/reparent/validate",
		`{"accountId":1,"newParentId":2}`, &validation))
	assert.False(t, validation.Valid)

	require.Equal(t, http.StatusNoContent, env.call(t, tenant, http.MethodDelete, "/accounts/2", "", nil))
	require.Equal(t, http.StatusNoContent, env.call(t, tenant, http.MethodDelete, "/accounts/1", "", nil))

	require.Equal(t, http.StatusOK, env.call(t, tenant, http.MethodGet, "/accounts/hierarchy", "", &hierarchy))
	assert.Empty(t, hierarchy.Accounts)

	var archived []accounts.AccountResponse
	require.Equal(t, http.StatusOK, env.call(t, tenant, http.MethodGet, "/accounts?isActive=false", "", &archived))
	assert.Len(t, archived, 2)

	assert.Equal(t, []string{"account.create", "account.create", "account.archive", "account.archive"}, env.audit.Actions())
}

func TestLedgerDefaultTenantAndMetrics(t *testing.T) {
	env := newLedgerEnv(t)

	var created accounts.AccountResponse
	require.Equal(t, http.StatusCreated, env.call(t, "", http.MethodPost, "/accounts",
		`{"code":"4000","name":"Sales Revenue","accountType":"REVENUE"}`, &created))
	assert.Equal(t, accounts.NormalBalanceCredit, created.NormalBalance)
	require.Equal(t, http.StatusUnprocessableEntity, env.call(t, "", http.MethodPost, "/accounts",
		`{"code":"4000","name":"Sales Revenue","accountType":"REVENUE"}`, nil))

	all, err := env.repo.FindAll(context.Background(), "default-tenant")
	require.NoError(t, err)
	require.Len(t, all, 1)

	// Corrupt the chart behind the service's back, then scan it.
	broken := all[0]
	broken.ID = 50
	broken.Code = "4000-99"
	broken.ParentID = func(v int64) *int64 { return &v }(404)
	broken.Level = 2
	env.repo.Put(broken)

	scan := jobs.NewIntegrityScanJob(env.repo, env.audit, env.logger, env.metrics.Jobs())
	task, err := jobs.NewIntegrityScanTask("default-tenant")
	require.NoError(t, err)
	require.NoError(t, scan.Handle(context.Background(), task))

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `odyssey_ledger_account_operations_total{operation="create",outcome="success"} 1`)
	assert.Contains(t, text, `odyssey_ledger_account_operations_total{operation="create",outcome="rejected"} 1`)
	assert.Contains(t, text, `odyssey_ledger_integrity_issues_total{severity="error",tenant="default-tenant"} 1`)
	assert.Contains(t, text, `odyssey_jobs_total{job="ledger:integrity_scan",status="success"} 1`)
	assert.Contains(t, text, `odyssey_http_requests_total{code="201"`)
}
