package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/core-ledger/internal/shared"
)

const resourceAccount = "Account"

// AuditPort records account lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// OperationObserver receives the outcome of each service operation.
type OperationObserver interface {
	ObserveAccountOperation(operation, outcome string)
}

// Service enforces chart of accounts rules for a single tenant and user.
// Instances are request scoped; build them through a Factory.
type Service struct {
	repo     Repository
	policies *Policies
	logger   *slog.Logger
	tenant   shared.TenantContext
	cache    *HierarchyCache
	audit    AuditPort
	observer OperationObserver
	now      func() time.Time
}

// NewService constructs the accounts service for the given caller.
func NewService(repo Repository, policies *Policies, logger *slog.Logger, tenant shared.TenantContext) (*Service, error) {
	if repo == nil {
		return nil, errors.New("accounts: repository required")
	}
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if policies == nil {
		policies = NewPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		policies: policies,
		logger:   logger.With(slog.String("tenant", tenant.TenantID)),
		tenant:   tenant,
		now:      time.Now,
	}, nil
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAccount validates and persists a new account.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (resp AccountResponse, err error) {
	defer s.observe("create", &err)
	s.logger.Info("creating account", slog.String("code", req.Code))

	if err := s.policies.ValidateCreate(req); err != nil {
		return AccountResponse{}, err
	}
	if err := s.ensureCodeAvailable(ctx, req.Code); err != nil {
		return AccountResponse{}, err
	}

	level := 1
	if req.ParentID != nil {
		parent, err := s.loadAccount(ctx, *req.ParentID, "Parent account not found")
		if err != nil {
			return AccountResponse{}, err
		}
		if err := s.policies.ValidateParentChild(parent, req); err != nil {
			return AccountResponse{}, err
		}
		level = parent.Level + 1
	}

	data := CreateAccountData{
		TenantID:      s.tenant.TenantID,
		Code:          req.Code,
		Name:          req.Name,
		ParentID:      req.ParentID,
		Type:          req.AccountType,
		NormalBalance: DeriveNormalBalance(req.AccountType),
		Currency:      DefaultCurrency,
		AllowPosting:  true,
		Level:         level,
		CreatedBy:     s.tenant.UserID,
		UpdatedBy:     s.tenant.UserID,
	}
	if req.Currency != nil {
		data.Currency = *req.Currency
	}
	if req.AllowPosting != nil {
		data.AllowPosting = *req.AllowPosting
	}

	account, err := s.repo.Create(ctx, data)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return AccountResponse{}, duplicateCodeError()
		}
		return AccountResponse{}, fmt.Errorf("create account: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, "account.create", account.ID, map[string]any{
		"code":           account.Code,
		"account_type":   string(account.Type),
		"normal_balance": string(account.NormalBalance),
		"level":          account.Level,
	})
	s.logger.Info("account created", slog.Int64("id", account.ID), slog.String("code", account.Code))
	return toResponse(account), nil
}

// GetAccount loads a single account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (AccountResponse, error) {
	account, err := s.loadAccount(ctx, id, "Account not found")
	if err != nil {
		return AccountResponse{}, err
	}
	return toResponse(account), nil
}

// GetAccountByCode loads a single account by its tenant-unique code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (AccountResponse, error) {
	account, err := s.repo.FindByCode(ctx, s.tenant.TenantID, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccountResponse{}, shared.NewNotFoundError("Account not found", resourceAccount)
		}
		return AccountResponse{}, fmt.Errorf("find account by code: %w", err)
	}
	return toResponse(account), nil
}

// GetAccountChildren lists the direct children of parentID.
func (s *Service) GetAccountChildren(ctx context.Context, parentID int64) ([]AccountResponse, error) {
	children, err := s.repo.FindChildren(ctx, s.tenant.TenantID, parentID)
	if err != nil {
		return nil, fmt.Errorf("find children: %w", err)
	}
	return toResponses(children), nil
}

// GetAccountHierarchy returns active accounts as a flat list and as a tree.
func (s *Service) GetAccountHierarchy(ctx context.Context) (HierarchyResponse, error) {
	accounts, err := s.loadHierarchy(ctx)
	if err != nil {
		return HierarchyResponse{}, fmt.Errorf("find hierarchy: %w", err)
	}
	return HierarchyResponse{
		Accounts:  toResponses(accounts),
		Hierarchy: buildHierarchyTree(accounts),
	}, nil
}

// SearchAccounts matches query against account names and codes.
func (s *Service) SearchAccounts(ctx context.Context, query string, filters SearchFilters) ([]AccountResponse, error) {
	accounts, err := s.repo.Search(ctx, s.tenant.TenantID, query, filters)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	return toResponses(accounts), nil
}

// UpdateAccount applies a partial update. When the account type changes and
// the caller did not also supply a normal balance, the balance is re-derived.
func (s *Service) UpdateAccount(ctx context.Context, id int64, req UpdateAccountRequest) (resp AccountResponse, err error) {
	defer s.observe("update", &err)
	s.logger.Info("updating account", slog.Int64("id", id))

	if err := s.policies.ValidateUpdate(req); err != nil {
		return AccountResponse{}, err
	}
	existing, err := s.loadAccount(ctx, id, "Account not found")
	if err != nil {
		return AccountResponse{}, err
	}
	if err := s.guardStructuralUpdate(ctx, existing, req); err != nil {
		return AccountResponse{}, err
	}

	patch := UpdateAccountData{
		Code:          req.Code,
		Name:          req.Name,
		Type:          req.AccountType,
		NormalBalance: req.NormalBalance,
		Currency:      req.Currency,
		AllowPosting:  req.AllowPosting,
		UpdatedBy:     s.tenant.UserID,
	}
	if req.AccountType.Set && !patch.NormalBalance.Set {
		patch.NormalBalance = Some(DeriveNormalBalance(req.AccountType.Value))
	}

	updated, err := s.repo.Update(ctx, s.tenant.TenantID, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return AccountResponse{}, shared.NewNotFoundError("Account not found", resourceAccount)
		case errors.Is(err, ErrDuplicateCode):
			return AccountResponse{}, duplicateCodeError()
		}
		return AccountResponse{}, fmt.Errorf("update account: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, "account.update", id, updateMeta(patch))
	s.logger.Info("account updated", slog.Int64("id", id))
	return toResponse(updated), nil
}

// ArchiveAccount soft deletes an account without active children.
func (s *Service) ArchiveAccount(ctx context.Context, id int64) (err error) {
	defer s.observe("archive", &err)
	s.logger.Info("archiving account", slog.Int64("id", id))

	account, err := s.loadAccount(ctx, id, "Account not found")
	if err != nil {
		return err
	}
	hasChildren, err := s.repo.HasChildren(ctx, s.tenant.TenantID, id)
	if err != nil {
		return fmt.Errorf("check children: %w", err)
	}
	if err := s.policies.ValidateArchive(account, hasChildren); err != nil {
		return err
	}
	if _, err := s.repo.Archive(ctx, s.tenant.TenantID, id, s.tenant.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return shared.NewNotFoundError("Account not found", resourceAccount)
		}
		return fmt.Errorf("archive account: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, "account.archive", id, map[string]any{"code": account.Code})
	s.logger.Info("account archived", slog.Int64("id", id))
	return nil
}

// ReparentAccount moves accountID under newParentID, or to the root when
// newParentID is nil.
func (s *Service) ReparentAccount(ctx context.Context, accountID int64, newParentID *int64) (resp AccountResponse, err error) {
	defer s.observe("reparent", &err)
	newParentID = rootIfZero(newParentID)
	s.logger.Info("reparenting account", slog.Int64("id", accountID), slog.Any("new_parent_id", newParentID))

	validation, err := s.ValidateReparent(ctx, accountID, newParentID)
	if err != nil {
		return AccountResponse{}, err
	}
	if !validation.Valid {
		return AccountResponse{}, shared.NewBusinessError(validation.Message, shared.CodeInvalidReparent)
	}

	account, err := s.repo.Reparent(ctx, s.tenant.TenantID, accountID, newParentID, s.tenant.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrDepthExceeded):
			return AccountResponse{}, shared.NewBusinessError("Maximum hierarchy depth would be exceeded", shared.CodeInvalidReparent)
		case errors.Is(err, ErrNotFound):
			return AccountResponse{}, shared.NewNotFoundError("Account not found", resourceAccount)
		}
		return AccountResponse{}, fmt.Errorf("reparent account: %w", err)
	}

	s.invalidate(ctx)
	s.record(ctx, "account.reparent", accountID, map[string]any{
		"new_parent_id": newParentID,
		"level":         account.Level,
	})
	s.logger.Info("account reparented", slog.Int64("id", accountID), slog.Int("level", account.Level))
	return toResponse(account), nil
}

// ValidateReparent reports whether a reparent would be accepted without
// changing any state. Only infrastructure failures are returned as errors.
func (s *Service) ValidateReparent(ctx context.Context, accountID int64, newParentID *int64) (ReparentValidation, error) {
	newParentID = rootIfZero(newParentID)
	account, err := s.repo.FindByID(ctx, s.tenant.TenantID, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReparentValidation{Valid: false, Message: "Account not found"}, nil
		}
		return ReparentValidation{}, fmt.Errorf("find account: %w", err)
	}

	var newParent *Account
	cycle := false
	if newParentID != nil {
		parent, err := s.repo.FindByID(ctx, s.tenant.TenantID, *newParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ReparentValidation{Valid: false, Message: "New parent account not found"}, nil
			}
			return ReparentValidation{}, fmt.Errorf("find new parent: %w", err)
		}
		newParent = &parent
		cycle, err = s.wouldCreateCycle(ctx, accountID, *newParentID)
		if err != nil {
			return ReparentValidation{}, fmt.Errorf("walk ancestors: %w", err)
		}
	}

	if err := s.policies.ValidateReparent(account, newParent, cycle); err != nil {
		var validationErr *shared.ValidationError
		if errors.As(err, &validationErr) {
			return ReparentValidation{Valid: false, Message: validationErr.Message}, nil
		}
		return ReparentValidation{Valid: false, Message: "Validation failed"}, nil
	}
	return ReparentValidation{Valid: true, Message: "Reparent operation is valid"}, nil
}

// guardStructuralUpdate keeps type and code changes consistent with the
// surrounding hierarchy and the tenant code index.
func (s *Service) guardStructuralUpdate(ctx context.Context, existing Account, req UpdateAccountRequest) error {
	typeChanged := req.AccountType.Set && req.AccountType.Value != existing.Type
	codeChanged := req.Code.Set && req.Code.Value != existing.Code
	if !typeChanged && !codeChanged {
		return nil
	}
	if codeChanged {
		if err := s.ensureCodeAvailable(ctx, req.Code.Value); err != nil {
			return err
		}
	}

	hasChildren, err := s.repo.HasChildren(ctx, s.tenant.TenantID, existing.ID)
	if err != nil {
		return fmt.Errorf("check children: %w", err)
	}
	if hasChildren {
		return shared.NewValidationError("Cannot change account type or code while child accounts exist", "id")
	}

	if existing.ParentID == nil {
		return nil
	}
	parent, err := s.repo.FindByID(ctx, s.tenant.TenantID, *existing.ParentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find parent: %w", err)
	}
	merged := CreateAccountRequest{Code: existing.Code, AccountType: existing.Type}
	if req.Code.Set {
		merged.Code = req.Code.Value
	}
	if req.AccountType.Set {
		merged.AccountType = req.AccountType.Value
	}
	return s.policies.ValidateParentChild(parent, merged)
}

func (s *Service) ensureCodeAvailable(ctx context.Context, code string) error {
	_, err := s.repo.FindByCode(ctx, s.tenant.TenantID, code)
	switch {
	case err == nil:
		return duplicateCodeError()
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return fmt.Errorf("find account by code: %w", err)
	}
}

func (s *Service) loadAccount(ctx context.Context, id int64, missing string) (Account, error) {
	account, err := s.repo.FindByID(ctx, s.tenant.TenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, shared.NewNotFoundError(missing, resourceAccount)
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *Service) loadHierarchy(ctx context.Context) ([]Account, error) {
	loader := func(ctx context.Context) ([]Account, error) {
		return s.repo.FindHierarchy(ctx, s.tenant.TenantID)
	}
	if s.cache == nil {
		return loader(ctx)
	}
	return s.cache.Load(ctx, s.tenant.TenantID, loader)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.tenant.TenantID); err != nil {
		s.logger.Warn("hierarchy cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: s.tenant.TenantID,
		ActorID:  s.tenant.UserID,
		Action:   action,
		Entity:   "account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(operation string, errp *error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveAccountOperation(operation, outcomeOf(*errp))
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var validationErr *shared.ValidationError
	var notFoundErr *shared.NotFoundError
	var businessErr *shared.BusinessError
	switch {
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &businessErr):
		return "rejected"
	}
	return "error"
}

// rootIfZero treats a zero parent id as a move to the root.
func rootIfZero(parentID *int64) *int64 {
	if parentID != nil && *parentID == 0 {
		return nil
	}
	return parentID
}

func duplicateCodeError() error {
	return shared.NewBusinessError("Account code already exists in this tenant", shared.CodeDuplicateCode)
}

func updateMeta(patch UpdateAccountData) map[string]any {
	meta := map[string]any{}
	if patch.Code.Set {
		meta["code"] = patch.Code.Value
	}
	if patch.Name.Set {
		meta["name"] = patch.Name.Value
	}
	if patch.Type.Set {
		meta["account_type"] = string(patch.Type.Value)
	}
	if patch.NormalBalance.Set {
		meta["normal_balance"] = string(patch.NormalBalance.Value)
	}
	if patch.Currency.Set {
		meta["currency"] = patch.Currency.Value
	}
	if patch.AllowPosting.Set {
		meta["allow_posting"] = patch.AllowPosting.Value
	}
	return meta
}
