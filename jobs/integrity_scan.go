package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
	jobmetrics "github.com/odyssey-erp/core-ledger/internal/jobs"
	"github.com/odyssey-erp/core-ledger/internal/shared"
)

// ScanActor is recorded as the acting user of scan audit entries.
const ScanActor = "integrity-scan"

// IntegrityScanJob walks each tenant's chart of accounts and reports
// structural inconsistencies.
type IntegrityScanJob struct {
	Source  accounts.IntegritySource
	Audit   accounts.AuditPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
	newID   func() uuid.UUID
}

// NewIntegrityScanJob wires dependencies for the scan handler.
func NewIntegrityScanJob(source accounts.IntegritySource, audit accounts.AuditPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Source:  source,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: uuid.New,
	}
}

// ScanResult summarises one tenant's scan.
type ScanResult struct {
	RunID    uuid.UUID
	TenantID string
	Accounts int
	Issues   []accounts.IntegrityIssue
}

// Handle processes integrity scan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("integrity scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskIntegrityScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	_, err := j.Run(ctx, payload)
	return err
}

// Run scans the requested tenants and returns one result per tenant.
func (j *IntegrityScanJob) Run(ctx context.Context, payload IntegrityScanPayload) ([]ScanResult, error) {
	if j.Source == nil {
		return nil, errors.New("integrity scan: source not configured")
	}
	start := j.now()
	runID := j.nextID()
	logger := j.logger().With(slog.String("run_id", runID.String()))

	tenants := []string{payload.TenantID}
	if payload.TenantID == "" {
		var err error
		tenants, err = j.Source.ListTenants(ctx)
		if err != nil {
			logger.Error("list tenants", slog.Any("error", err))
			return nil, err
		}
	}
	logger.Info("starting integrity scan", slog.Int("tenants", len(tenants)))

	results := make([]ScanResult, 0, len(tenants))
	total := 0
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := j.scanTenant(ctx, logger, runID, tenantID)
		if err != nil {
			logger.Error("scan tenant", slog.String("tenant", tenantID), slog.Any("error", err))
			return results, err
		}
		total += len(result.Issues)
		results = append(results, result)
	}

	logger.Info("completed integrity scan",
		slog.Int("tenants", len(results)),
		slog.Int("issues", total),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func (j *IntegrityScanJob) scanTenant(ctx context.Context, logger *slog.Logger, runID uuid.UUID, tenantID string) (ScanResult, error) {
	all, err := j.Source.FindAll(ctx, tenantID)
	if err != nil {
		return ScanResult{}, err
	}
	issues := accounts.CheckIntegrity(all)

	counts := map[string]int{}
	for _, issue := range issues {
		counts[issue.Severity]++
		logger.Warn("account integrity issue",
			slog.String("tenant", tenantID),
			slog.Int64("account_id", issue.AccountID),
			slog.String("code", issue.Code),
			slog.String("kind", issue.Kind),
			slog.String("severity", issue.Severity),
			slog.String("detail", issue.Detail),
		)
	}
	for severity, n := range counts {
		j.metrics().AddIntegrityIssues(severity, tenantID, n)
	}

	if j.Audit != nil {
		err := j.Audit.Record(ctx, shared.AuditLog{
			ID:       j.nextID(),
			TenantID: tenantID,
			ActorID:  ScanActor,
			Action:   "account.integrity_scan",
			Entity:   "chart_of_accounts",
			EntityID: runID.String(),
			Meta: map[string]any{
				"accounts": len(all),
				"errors":   counts[accounts.SeverityError],
				"warnings": counts[accounts.SeverityWarning],
			},
			At: j.now(),
		})
		if err != nil {
			logger.Warn("record scan audit", slog.String("tenant", tenantID), slog.Any("error", err))
		}
	}

	return ScanResult{RunID: runID, TenantID: tenantID, Accounts: len(all), Issues: issues}, nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *IntegrityScanJob) nextID() uuid.UUID {
	if j.newID != nil {
		return j.newID()
	}
	return uuid.New()
}
