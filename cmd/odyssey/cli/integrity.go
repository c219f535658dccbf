package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/core-ledger/jobs"
)

// IntegrityCLI runs the chart of accounts integrity scan in the foreground.
type IntegrityCLI struct {
	source accounts.IntegritySource
	logger *slog.Logger
}

// NewIntegrityCLI constructs the helper.
func NewIntegrityCLI(source accounts.IntegritySource, logger *slog.Logger) (*IntegrityCLI, error) {
	if source == nil {
		return nil, fmt.Errorf("integrity cli: source required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &IntegrityCLI{source: source, logger: logger}, nil
}

// IntegrityOptions defines available flags for the integrity command.
type IntegrityOptions struct {
	TenantID   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegritySummary describes the JSON response for the integrity command.
type IntegritySummary struct {
	OK      bool                    `json:"ok"`
	RunID   string                  `json:"run_id"`
	Tenants []IntegrityTenantReport `json:"tenants"`
}

// IntegrityTenantReport lists the issues found for one tenant.
type IntegrityTenantReport struct {
	TenantID string                    `json:"tenant_id"`
	Accounts int                       `json:"accounts"`
	Issues   []accounts.IntegrityIssue `json:"issues"`
}

// Command executes the scan and prints the outcome. The exit code is 10 when
// any error severity issue is found.
func (c *IntegrityCLI) Command(ctx context.Context, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	job := jobs.NewIntegrityScanJob(c.source, nil, c.logger, nil)
	results, err := job.Run(ctx, jobs.IntegrityScanPayload{TenantID: strings.TrimSpace(opts.TenantID)})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: %v\n", err)
		return 1
	}

	summary := buildIntegritySummary(results)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func buildIntegritySummary(results []jobs.ScanResult) IntegritySummary {
	summary := IntegritySummary{OK: true, Tenants: make([]IntegrityTenantReport, 0, len(results))}
	for _, r := range results {
		summary.RunID = r.RunID.String()
		issues := append([]accounts.IntegrityIssue(nil), r.Issues...)
		if issues == nil {
			issues = []accounts.IntegrityIssue{}
		}
		sort.SliceStable(issues, func(i, j int) bool {
			if issues[i].Code == issues[j].Code {
				return issues[i].Kind < issues[j].Kind
			}
			return issues[i].Code < issues[j].Code
		})
		for _, issue := range issues {
			if issue.Severity == accounts.SeverityError {
				summary.OK = false
			}
		}
		summary.Tenants = append(summary.Tenants, IntegrityTenantReport{
			TenantID: r.TenantID,
			Accounts: r.Accounts,
			Issues:   issues,
		})
	}
	sort.Slice(summary.Tenants, func(i, j int) bool {
		return summary.Tenants[i].TenantID < summary.Tenants[j].TenantID
	})
	return summary
}

func renderIntegrityHuman(out io.Writer, summary IntegritySummary) {
	if len(summary.Tenants) == 0 {
		_, _ = fmt.Fprintln(out, "No tenants with accounts found.")
		return
	}
	for _, tenant := range summary.Tenants {
		_, _ = fmt.Fprintf(out, "Tenant %s: %d account(s) checked\n", tenant.TenantID, tenant.Accounts)
		if len(tenant.Issues) == 0 {
			_, _ = fmt.Fprintln(out, "  no issues")
			continue
		}
		for _, issue := range tenant.Issues {
			_, _ = fmt.Fprintf(out, "  [%s] %s %s: %s\n", issue.Severity, issue.Code, issue.Kind, issue.Detail)
		}
	}
}
