package accounts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/odyssey-erp/core-ledger/internal/shared"
)

const (
	minCodeLength = 3
	maxCodeLength = 50
	minNameLength = 5
	maxNameLength = 255
)

var (
	codePattern     = regexp.MustCompile(`^[A-Z0-9-]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Policies holds the stateless validation rules for accounts. Every method
// returns a *shared.ValidationError on violation.
type Policies struct{}

// NewPolicies constructs Policies.
func NewPolicies() *Policies {
	return &Policies{}
}

// ValidateCreate checks the fields of a create request.
func (p *Policies) ValidateCreate(req CreateAccountRequest) error {
	if err := validateCode(req.Code); err != nil {
		return err
	}
	if err := validateName(req.Name); err != nil {
		return err
	}
	if err := validateAccountType(req.AccountType); err != nil {
		return err
	}
	if req.Currency != nil {
		return validateCurrency(*req.Currency)
	}
	return nil
}

// ValidateUpdate applies the create rules to the fields present in req.
func (p *Policies) ValidateUpdate(req UpdateAccountRequest) error {
	if req.Code.Set {
		if err := validateCode(req.Code.Value); err != nil {
			return err
		}
	}
	if req.Name.Set {
		if err := validateName(req.Name.Value); err != nil {
			return err
		}
	}
	if req.AccountType.Set {
		if err := validateAccountType(req.AccountType.Value); err != nil {
			return err
		}
	}
	if req.NormalBalance.Set && !req.NormalBalance.Value.Valid() {
		return shared.NewValidationError("Normal balance must be one of: DEBIT, CREDIT", "normalBalance")
	}
	if req.Currency.Set {
		return validateCurrency(req.Currency.Value)
	}
	return nil
}

// ValidateParentChild enforces type, code prefix and depth rules between a
// parent and a prospective child.
func (p *Policies) ValidateParentChild(parent Account, child CreateAccountRequest) error {
	if parent.Type != child.AccountType {
		return shared.NewValidationError(
			fmt.Sprintf("Child account type (%s) must match parent type (%s)", child.AccountType, parent.Type),
			"accountType",
		)
	}
	if !strings.HasPrefix(child.Code, parent.Code) {
		return shared.NewValidationError(
			fmt.Sprintf("Child account code must start with parent code (%s)", parent.Code),
			"code",
		)
	}
	if parent.Level >= MaxHierarchyDepth {
		return shared.NewValidationError(
			fmt.Sprintf("Maximum hierarchy depth of %d levels exceeded", MaxHierarchyDepth),
			"parentId",
		)
	}
	return nil
}

// ValidateArchive guards soft deletion.
func (p *Policies) ValidateArchive(account Account, hasChildren bool) error {
	if !account.IsActive {
		return shared.NewValidationError("Account is already archived", "")
	}
	if hasChildren {
		return shared.NewValidationError("Cannot archive account with child accounts. Archive children first.", "id")
	}
	return nil
}

// ValidateReparent checks a move of account under newParent. A nil
// newParent means the account becomes a root.
func (p *Policies) ValidateReparent(account Account, newParent *Account, wouldCreateCycle bool) error {
	if newParent != nil && newParent.ID == account.ID {
		return shared.NewValidationError("Cannot set account as its own parent", "newParentId")
	}
	if wouldCreateCycle {
		return shared.NewValidationError("Reparenting would create a circular reference in the hierarchy", "newParentId")
	}
	if newParent == nil {
		return nil
	}
	if account.Type != newParent.Type {
		return shared.NewValidationError(
			fmt.Sprintf("Account types must match. Cannot reparent %s under %s", account.Type, newParent.Type),
			"newParentId",
		)
	}
	if newParent.Level >= MaxHierarchyDepth {
		return shared.NewValidationError("Maximum hierarchy depth would be exceeded", "newParentId")
	}
	if !strings.HasPrefix(account.Code, newParent.Code) {
		return shared.NewValidationError(
			fmt.Sprintf("Account code (%s) does not start with new parent code (%s)", account.Code, newParent.Code),
			"newParentId",
		)
	}
	return nil
}

func validateCode(code string) error {
	if len(code) < minCodeLength {
		return shared.NewValidationError("Account code must be at least 3 characters", "code")
	}
	if !codePattern.MatchString(code) {
		return shared.NewValidationError("Account code must contain only uppercase letters, numbers, and hyphens", "code")
	}
	if len(code) > maxCodeLength {
		return shared.NewValidationError("Account code must not exceed 50 characters", "code")
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength {
		return shared.NewValidationError("Account name must be at least 5 characters", "name")
	}
	if n > maxNameLength {
		return shared.NewValidationError("Account name must not exceed 255 characters", "name")
	}
	return nil
}

func validateAccountType(t AccountType) error {
	if t.Valid() {
		return nil
	}
	names := make([]string, 0, len(AccountTypes))
	for _, at := range AccountTypes {
		names = append(names, string(at))
	}
	return shared.NewValidationError("Account type must be one of: "+strings.Join(names, ", "), "accountType")
}

func validateCurrency(currency string) error {
	if !currencyPattern.MatchString(currency) {
		return shared.NewValidationError("Currency must be a valid 3-letter ISO code", "currency")
	}
	return nil
}
