package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("ledger:integrity_scan").End(nil)

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_jobs_total{job="ledger:integrity_scan",status="success"} 1`)
	assert.Contains(t, body, "odyssey_job_duration_seconds_bucket")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/accounts/{id}")

	req := httptest.NewRequest(http.MethodGet, "/accounts/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `http_requests_total{code="418",route="/accounts/{id}"} 1`)
	assert.Contains(t, body, `http_request_duration_seconds_bucket{route="/accounts/{id}"`)
}

func TestObserveAccountOperation(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveAccountOperation("create", "success")
	metrics.ObserveAccountOperation("create", "success")
	metrics.ObserveAccountOperation("reparent", "rejected")

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_ledger_account_operations_total{operation="create",outcome="success"} 2`)
	assert.Contains(t, body, `odyssey_ledger_account_operations_total{operation="reparent",outcome="rejected"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveAccountOperation("create", "success")
	assert.Nil(t, metrics.Jobs())

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestLedgerAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rules alertFile
	require.NoError(t, yaml.Unmarshal(data, &rules))

	var ledger *alertGroup
	for i := range rules.Groups {
		if rules.Groups[i].Name == "ledger" {
			ledger = &rules.Groups[i]
		}
	}
	require.NotNil(t, ledger, "ledger alert group missing")

	expected := map[string]string{
		"LedgerHighErrorRate":       "critical",
		"LedgerIntegrityIssues":     "warning",
		"LedgerIntegrityScanFailed": "warning",
	}
	require.Len(t, ledger.Rules, len(expected))
	for _, rule := range ledger.Rules {
		severity, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.NotEmpty(t, rule.Expr, rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
		assert.True(t, strings.HasPrefix(rule.Expr, "sum(") || strings.HasPrefix(rule.Expr, "increase("), rule.Alert)
	}
}
