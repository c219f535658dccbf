package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists every supported account type in display order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance is the side on which increases are recorded.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Valid reports whether b is DEBIT or CREDIT.
func (b NormalBalance) Valid() bool {
	return b == NormalBalanceDebit || b == NormalBalanceCredit
}

const (
	// MaxHierarchyDepth bounds the level of any account.
	MaxHierarchyDepth = 5
	// DefaultCurrency applies when a create request omits currency.
	DefaultCurrency = "USD"
)

// DeriveNormalBalance maps an account type to its conventional balance side.
func DeriveNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID                 int64
	TenantID           string
	Code               string
	Name               string
	ParentID           *int64
	Type               AccountType
	NormalBalance      NormalBalance
	Currency           string
	IsActive           bool
	AllowPosting       bool
	Level              int
	EffectiveStartDate time.Time
	EffectiveEndDate   *time.Time
	CreatedAt          time.Time
	CreatedBy          string
	UpdatedAt          time.Time
	UpdatedBy          string
}

// IsRoot reports whether the account has no parent.
func (a Account) IsRoot() bool {
	return a.ParentID == nil
}
