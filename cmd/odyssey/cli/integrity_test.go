package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
)

type stubSource struct {
	tenants  []string
	accounts map[string][]accounts.Account
	err      error
}

func (s stubSource) ListTenants(context.Context) ([]string, error) {
	return s.tenants, s.err
}

func (s stubSource) FindAll(_ context.Context, tenantID string) ([]accounts.Account, error) {
	return s.accounts[tenantID], s.err
}

func ptr(v int64) *int64 { return &v }

func healthyChart() []accounts.Account {
	return []accounts.Account{
		{ID: 1, Code: "1000", Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Currency: "USD", Level: 1, IsActive: true},
		{ID: 2, Code: "1000-10", ParentID: ptr(1), Type: accounts.AccountTypeAsset, NormalBalance: accounts.NormalBalanceDebit, Currency: "USD", Level: 2, IsActive: true},
	}
}

func TestIntegrityCommandJSONSuccess(t *testing.T) {
	source := stubSource{
		tenants:  []string{"tenant-a"},
		accounts: map[string][]accounts.Account{"tenant-a": healthyChart()},
	}
	cli, err := NewIntegrityCLI(source, nil)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), IntegrityOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary IntegritySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Tenants, 1)
	require.Equal(t, 2, summary.Tenants[0].Accounts)
	require.Empty(t, summary.Tenants[0].Issues)
}

func TestIntegrityCommandReportsErrors(t *testing.T) {
	chart := healthyChart()
	chart[1].Level = 4
	source := stubSource{accounts: map[string][]accounts.Account{"tenant-b": chart}}
	cli, err := NewIntegrityCLI(source, nil)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), IntegrityOptions{TenantID: "tenant-b", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, exitCode)
	require.Contains(t, stdout.String(), "Tenant tenant-b: 2 account(s) checked")
	require.Contains(t, stdout.String(), accounts.IssueLevelMismatch)
}

func TestIntegrityCommandSourceFailure(t *testing.T) {
	cli, err := NewIntegrityCLI(stubSource{err: errors.New("db down")}, nil)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), IntegrityOptions{Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "db down")
}

func TestNewIntegrityCLIRequiresSource(t *testing.T) {
	_, err := NewIntegrityCLI(nil, nil)
	require.Error(t, err)
}
