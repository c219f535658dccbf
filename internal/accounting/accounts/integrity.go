package accounts

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// Integrity issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Integrity issue kinds.
const (
	IssueOrphanParent       = "orphan_parent"
	IssueCycle              = "cycle"
	IssueLevelMismatch      = "level_mismatch"
	IssueDepthExceeded      = "depth_exceeded"
	IssueTypeMismatch       = "type_mismatch"
	IssuePrefixMismatch     = "prefix_mismatch"
	IssueNormalBalanceDrift = "normal_balance_drift"
	IssueUnknownCurrency    = "unknown_currency"
	IssueArchivedParent     = "archived_parent"
)

// IntegrityIssue describes one account whose persisted state breaks a
// hierarchy rule.
type IntegrityIssue struct {
	AccountID int64  `json:"accountId"`
	Code      string `json:"code"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Detail    string `json:"detail"`
}

// CheckIntegrity inspects every account of one tenant, active or archived,
// and reports rule violations. Accounts are reported in input order.
func CheckIntegrity(accounts []Account) []IntegrityIssue {
	byID := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	issues := make([]IntegrityIssue, 0)
	report := func(a Account, kind, severity, detail string) {
		issues = append(issues, IntegrityIssue{AccountID: a.ID, Code: a.Code, Kind: kind, Severity: severity, Detail: detail})
	}

	for _, a := range accounts {
		if a.NormalBalance != DeriveNormalBalance(a.Type) {
			report(a, IssueNormalBalanceDrift, SeverityWarning,
				fmt.Sprintf("normal balance %s differs from derived %s", a.NormalBalance, DeriveNormalBalance(a.Type)))
		}
		if _, err := currency.ParseISO(a.Currency); err != nil {
			report(a, IssueUnknownCurrency, SeverityWarning, fmt.Sprintf("currency %q is not a known ISO 4217 code", a.Currency))
		}
		if a.Level > MaxHierarchyDepth {
			report(a, IssueDepthExceeded, SeverityError, fmt.Sprintf("level %d exceeds maximum depth %d", a.Level, MaxHierarchyDepth))
		}

		if a.ParentID == nil {
			if a.Level != 1 {
				report(a, IssueLevelMismatch, SeverityError, fmt.Sprintf("root account has level %d", a.Level))
			}
			continue
		}

		parent, ok := byID[*a.ParentID]
		if !ok {
			report(a, IssueOrphanParent, SeverityError, fmt.Sprintf("parent %d does not exist", *a.ParentID))
			continue
		}
		if hasCycle(a, byID) {
			report(a, IssueCycle, SeverityError, "ancestor chain loops back on itself")
			continue
		}
		if a.Level != parent.Level+1 {
			report(a, IssueLevelMismatch, SeverityError,
				fmt.Sprintf("level %d but parent %s has level %d", a.Level, parent.Code, parent.Level))
		}
		if a.Type != parent.Type {
			report(a, IssueTypeMismatch, SeverityError,
				fmt.Sprintf("type %s differs from parent %s type %s", a.Type, parent.Code, parent.Type))
		}
		if !strings.HasPrefix(a.Code, parent.Code) {
			report(a, IssuePrefixMismatch, SeverityError, fmt.Sprintf("code does not start with parent code %s", parent.Code))
		}
		if a.IsActive && !parent.IsActive {
			report(a, IssueArchivedParent, SeverityWarning, fmt.Sprintf("active account under archived parent %s", parent.Code))
		}
	}
	return issues
}

func hasCycle(start Account, byID map[int64]Account) bool {
	visited := map[int64]struct{}{start.ID: {}}
	current := start
	for current.ParentID != nil {
		if _, seen := visited[*current.ParentID]; seen {
			return true
		}
		next, ok := byID[*current.ParentID]
		if !ok {
			return false
		}
		visited[next.ID] = struct{}{}
		current = next
	}
	return false
}
