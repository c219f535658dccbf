package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyChart() []Account {
	return []Account{
		{ID: 1, Code: "1000", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, Currency: "USD", Level: 1, IsActive: true},
		{ID: 2, Code: "1000-10", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, Currency: "USD", Level: 2, ParentID: id(1), IsActive: true},
		{ID: 3, Code: "2000", Type: AccountTypeLiability, NormalBalance: NormalBalanceCredit, Currency: "EUR", Level: 1, IsActive: true},
	}
}

func kinds(issues []IntegrityIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Kind)
	}
	return out
}

func TestCheckIntegrityHealthy(t *testing.T) {
	issues := CheckIntegrity(healthyChart())
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestCheckIntegrityFindsEachKind(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func([]Account) []Account
		kind     string
		severity string
	}{
		{"orphan", func(c []Account) []Account { c[1].ParentID = id(99); return c }, IssueOrphanParent, SeverityError},
		{"root level", func(c []Account) []Account { c[0].Level = 2; c[1].Level = 3; return c }, IssueLevelMismatch, SeverityError},
		{"child level", func(c []Account) []Account { c[1].Level = 3; return c }, IssueLevelMismatch, SeverityError},
		{"type", func(c []Account) []Account {
			c[1].Type = AccountTypeExpense
			return c
		}, IssueTypeMismatch, SeverityError},
		{"prefix", func(c []Account) []Account { c[1].Code = "1100-10"; return c }, IssuePrefixMismatch, SeverityError},
		{"balance", func(c []Account) []Account { c[2].NormalBalance = NormalBalanceDebit; return c }, IssueNormalBalanceDrift, SeverityWarning},
		{"currency", func(c []Account) []Account { c[2].Currency = "ZZZ"; return c }, IssueUnknownCurrency, SeverityWarning},
		{"archived parent", func(c []Account) []Account { c[0].IsActive = false; return c }, IssueArchivedParent, SeverityWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues := CheckIntegrity(tc.mutate(healthyChart()))
			require.NotEmpty(t, issues)
			assert.Contains(t, kinds(issues), tc.kind)
			for _, issue := range issues {
				if issue.Kind == tc.kind {
					assert.Equal(t, tc.severity, issue.Severity)
					assert.NotEmpty(t, issue.Detail)
				}
			}
		})
	}
}

func TestCheckIntegrityCycle(t *testing.T) {
	chart := []Account{
		{ID: 1, Code: "10", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, Currency: "USD", Level: 2, ParentID: id(2), IsActive: true},
		{ID: 2, Code: "1", Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, Currency: "USD", Level: 1, ParentID: id(1), IsActive: true},
	}
	issues := CheckIntegrity(chart)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.Equal(t, IssueCycle, issue.Kind)
	}
}

func TestCheckIntegrityDepthExceeded(t *testing.T) {
	chart := make([]Account, 0, 6)
	code := "1000"
	for level := 1; level <= 6; level++ {
		a := Account{ID: int64(level), Code: code, Type: AccountTypeAsset, NormalBalance: NormalBalanceDebit, Currency: "USD", Level: level, IsActive: true}
		if level > 1 {
			a.ParentID = id(int64(level - 1))
		}
		chart = append(chart, a)
		code += "-1"
	}
	issues := CheckIntegrity(chart)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueDepthExceeded, issues[0].Kind)
	assert.Equal(t, int64(6), issues[0].AccountID)
}
