package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts/accountstest"
	jobmetrics "github.com/odyssey-erp/core-ledger/internal/jobs"
)

func parentOf(id int64) *int64 { return &id }

func seedCharts(repo *accountstest.MemoryRepository) {
	// tenant-a is healthy.
	repo.Put(accounts.Account{ID: 1, TenantID: "tenant-a", Code: "1000", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Currency: "USD", Level: 1, IsActive: true})
	repo.Put(accounts.Account{ID: 2, TenantID: "tenant-a", Code: "1000-10", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Currency: "USD", Level: 2, ParentID: parentOf(1), IsActive: true})
	// tenant-b has one orphan and one drifted normal balance.
	repo.Put(accounts.Account{ID: 3, TenantID: "tenant-b", Code: "2000", Type: accounts.AccountTypeLiability, NormalBalance: accounts.NormalBalanceDebit, Currency: "USD", Level: 1, IsActive: true})
	repo.Put(accounts.Account{ID: 4, TenantID: "tenant-b", Code: "2000-10", Type: accounts.AccountTypeLiability, NormalBalance: accounts.NormalBalanceCredit, Currency: "USD", Level: 2, ParentID: parentOf(42), IsActive: true})
}

func newScanJob(t *testing.T, repo *accountstest.MemoryRepository, audit accounts.AuditPort) (*IntegrityScanJob, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	job := NewIntegrityScanJob(repo, audit, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(registry))
	job.clock = func() time.Time { return time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC) }
	job.newID = func() uuid.UUID { return uuid.MustParse("6f1c1f7a-8d1b-4e44-9f0e-2b7f6c1d0a11") }
	return job, registry
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}

func TestIntegrityScanRunAllTenants(t *testing.T) {
	repo := accountstest.NewMemoryRepository()
	seedCharts(repo)
	audit := &accountstest.AuditRecorder{}
	job, registry := newScanJob(t, repo, audit)

	results, err := job.Run(context.Background(), IntegrityScanPayload{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "tenant-a", results[0].TenantID)
	assert.Equal(t, 2, results[0].Accounts)
	assert.Empty(t, results[0].Issues)

	assert.Equal(t, "tenant-b", results[1].TenantID)
	require.Len(t, results[1].Issues, 2)
	assert.Equal(t, accounts.IssueNormalBalanceDrift, results[1].Issues[0].Kind)
	assert.Equal(t, accounts.IssueOrphanParent, results[1].Issues[1].Kind)

	assert.Equal(t, float64(1), counterValue(t, registry, "odyssey_ledger_integrity_issues_total",
		map[string]string{"severity": "error", "tenant": "tenant-b"}))
	assert.Equal(t, float64(1), counterValue(t, registry, "odyssey_ledger_integrity_issues_total",
		map[string]string{"severity": "warning", "tenant": "tenant-b"}))

	entries := audit.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "account.integrity_scan", entries[1].Action)
	assert.Equal(t, ScanActor, entries[1].ActorID)
	assert.Equal(t, "6f1c1f7a-8d1b-4e44-9f0e-2b7f6c1d0a11", entries[1].EntityID)
	assert.Equal(t, 1, entries[1].Meta["errors"])
	assert.Equal(t, 1, entries[1].Meta["warnings"])
	assert.Equal(t, time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC), entries[1].At)
}

func TestIntegrityScanSingleTenant(t *testing.T) {
	repo := accountstest.NewMemoryRepository()
	seedCharts(repo)
	job, _ := newScanJob(t, repo, nil)

	results, err := job.Run(context.Background(), IntegrityScanPayload{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, repo.Calls("ListTenants"))
}

func TestIntegrityScanHandleTracksRuns(t *testing.T) {
	repo := accountstest.NewMemoryRepository()
	seedCharts(repo)
	job, registry := newScanJob(t, repo, &accountstest.AuditRecorder{})

	task, err := NewIntegrityScanTask("tenant-b")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, float64(1), counterValue(t, registry, "odyssey_jobs_total",
		map[string]string{"job": TaskIntegrityScan, "status": "success"}))

	boom := errors.New("replica lag")
	repo.FailWith("FindAll", boom)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, float64(1), counterValue(t, registry, "odyssey_jobs_failures_total",
		map[string]string{"job": TaskIntegrityScan}))
}

func TestIntegrityScanRejectsBadPayload(t *testing.T) {
	job, _ := newScanJob(t, accountstest.NewMemoryRepository(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskIntegrityScan, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestIntegrityScanAuditFailureIsNotFatal(t *testing.T) {
	repo := accountstest.NewMemoryRepository()
	seedCharts(repo)
	job, _ := newScanJob(t, repo, &accountstest.AuditRecorder{Err: errors.New("audit down")})

	results, err := job.Run(context.Background(), IntegrityScanPayload{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIntegrityScanListTenantsError(t *testing.T) {
	repo := accountstest.NewMemoryRepository()
	boom := errors.New("catalog unavailable")
	repo.FailWith("ListTenants", boom)
	job, _ := newScanJob(t, repo, nil)

	_, err := job.Run(context.Background(), IntegrityScanPayload{})
	assert.ErrorIs(t, err, boom)
}

func TestIntegrityScanTaskPayload(t *testing.T) {
	task, err := NewIntegrityScanTask("")
	require.NoError(t, err)
	assert.Equal(t, TaskIntegrityScan, task.Type())
	assert.JSONEq(t, `{}`, string(task.Payload()))
}
