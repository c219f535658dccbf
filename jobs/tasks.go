package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/core-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan is the task type for chart of accounts integrity scans.
	TaskIntegrityScan = "ledger:integrity_scan"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityScanPayload selects the tenant to scan. An empty TenantID scans
// every tenant that owns at least one account.
type IntegrityScanPayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(tenantID string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}
