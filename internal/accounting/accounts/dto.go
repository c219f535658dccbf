package accounts

import "time"

// CreateAccountRequest is the payload for creating an account.
type CreateAccountRequest struct {
	Code         string      `json:"code"`
	Name         string      `json:"name"`
	AccountType  AccountType `json:"accountType"`
	Currency     *string     `json:"currency,omitempty"`
	AllowPosting *bool       `json:"allowPosting,omitempty"`
	ParentID     *int64      `json:"parentId,omitempty" validate:"omitempty,gt=0"`
}

// UpdateAccountRequest carries a partial update. Only fields marked Set are
// validated and persisted.
type UpdateAccountRequest struct {
	Code          Optional[string]        `json:"code"`
	Name          Optional[string]        `json:"name"`
	AccountType   Optional[AccountType]   `json:"accountType"`
	NormalBalance Optional[NormalBalance] `json:"normalBalance"`
	Currency      Optional[string]        `json:"currency"`
	AllowPosting  Optional[bool]          `json:"allowPosting"`
}

// ReparentRequest moves an account under a new parent. A null newParentId
// turns the account into a root.
type ReparentRequest struct {
	AccountID   int64            `json:"accountId" validate:"required,gt=0"`
	NewParentID Optional[*int64] `json:"newParentId"`
}

// SearchFilters narrows account searches.
type SearchFilters struct {
	AccountType  *AccountType
	Currency     *string
	IsActive     *bool
	AllowPosting *bool
}

// CreateAccountData is the repository insert payload.
type CreateAccountData struct {
	TenantID      string
	Code          string
	Name          string
	ParentID      *int64
	Type          AccountType
	NormalBalance NormalBalance
	Currency      string
	AllowPosting  bool
	Level         int
	CreatedBy     string
	UpdatedBy     string
}

// UpdateAccountData is the repository patch payload.
type UpdateAccountData struct {
	Code          Optional[string]
	Name          Optional[string]
	Type          Optional[AccountType]
	NormalBalance Optional[NormalBalance]
	Currency      Optional[string]
	AllowPosting  Optional[bool]
	UpdatedBy     string
}

// AccountResponse is the external representation of an account.
type AccountResponse struct {
	ID                 int64         `json:"id"`
	Code               string        `json:"code"`
	Name               string        `json:"name"`
	ParentID           *int64        `json:"parentId"`
	AccountType        AccountType   `json:"accountType"`
	NormalBalance      NormalBalance `json:"normalBalance"`
	Currency           string        `json:"currency"`
	IsActive           bool          `json:"isActive"`
	AllowPosting       bool          `json:"allowPosting"`
	Level              int           `json:"level"`
	EffectiveStartDate string        `json:"effectiveStartDate"`
	EffectiveEndDate   *string       `json:"effectiveEndDate"`
	CreatedAt          string        `json:"createdAt"`
	CreatedBy          string        `json:"createdBy"`
	UpdatedAt          string        `json:"updatedAt"`
	UpdatedBy          string        `json:"updatedBy"`
}

// HierarchyNode is an account with its direct children nested.
type HierarchyNode struct {
	AccountResponse
	Children []HierarchyNode `json:"children"`
}

// HierarchyResponse carries the flat list and the assembled tree.
type HierarchyResponse struct {
	Accounts  []AccountResponse `json:"accounts"`
	Hierarchy []HierarchyNode   `json:"hierarchy"`
}

// ReparentValidation reports whether a reparent would be accepted.
type ReparentValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func toResponse(a Account) AccountResponse {
	resp := AccountResponse{
		ID:                 a.ID,
		Code:               a.Code,
		Name:               a.Name,
		ParentID:           a.ParentID,
		AccountType:        a.Type,
		NormalBalance:      a.NormalBalance,
		Currency:           a.Currency,
		IsActive:           a.IsActive,
		AllowPosting:       a.AllowPosting,
		Level:              a.Level,
		EffectiveStartDate: formatTimestamp(a.EffectiveStartDate),
		CreatedAt:          formatTimestamp(a.CreatedAt),
		CreatedBy:          a.CreatedBy,
		UpdatedAt:          formatTimestamp(a.UpdatedAt),
		UpdatedBy:          a.UpdatedBy,
	}
	if a.EffectiveEndDate != nil {
		end := formatTimestamp(*a.EffectiveEndDate)
		resp.EffectiveEndDate = &end
	}
	return resp
}

func toResponses(accounts []Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	return out
}
