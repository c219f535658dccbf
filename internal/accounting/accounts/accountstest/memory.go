// Package accountstest provides an in-memory accounts repository for tests.
package accountstest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
)

// MemoryRepository mirrors the Postgres repository semantics in memory,
// including the (tenant, code) unique index and subtree level updates.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]accounts.Account
	failures map[string]error
	calls    map[string]int
	Now      func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows:     make(map[int64]accounts.Account),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		Now:      func() time.Time { return time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC) },
	}
}

// FailWith makes every later call to method return err. A nil err clears it.
func (m *MemoryRepository) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls reports how many times method was invoked.
func (m *MemoryRepository) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Put stores a as-is, bypassing every rule. Use it to seed malformed data.
func (m *MemoryRepository) Put(a accounts.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID > m.nextID {
		m.nextID = a.ID
	}
	m.rows[a.ID] = a
}

func (m *MemoryRepository) enter(method string) error {
	m.calls[method]++
	return m.failures[method]
}

func (m *MemoryRepository) Create(_ context.Context, data accounts.CreateAccountData) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Create"); err != nil {
		return accounts.Account{}, err
	}
	if m.codeTaken(data.TenantID, data.Code, 0) {
		return accounts.Account{}, accounts.ErrDuplicateCode
	}
	m.nextID++
	now := m.Now()
	a := accounts.Account{
		ID:                 m.nextID,
		TenantID:           data.TenantID,
		Code:               data.Code,
		Name:               data.Name,
		ParentID:           data.ParentID,
		Type:               data.Type,
		NormalBalance:      data.NormalBalance,
		Currency:           data.Currency,
		IsActive:           true,
		AllowPosting:       data.AllowPosting,
		Level:              data.Level,
		EffectiveStartDate: now,
		CreatedAt:          now,
		CreatedBy:          data.CreatedBy,
		UpdatedAt:          now,
		UpdatedBy:          data.UpdatedBy,
	}
	m.rows[a.ID] = a
	return a, nil
}

func (m *MemoryRepository) FindByID(_ context.Context, tenantID string, id int64) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindByID"); err != nil {
		return accounts.Account{}, err
	}
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, accounts.ErrNotFound
	}
	return a, nil
}

func (m *MemoryRepository) FindByCode(_ context.Context, tenantID, code string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindByCode"); err != nil {
		return accounts.Account{}, err
	}
	for _, a := range m.rows {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, accounts.ErrNotFound
}

func (m *MemoryRepository) FindChildren(_ context.Context, tenantID string, parentID int64) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindChildren"); err != nil {
		return nil, err
	}
	return m.filter(func(a accounts.Account) bool {
		return a.TenantID == tenantID && a.ParentID != nil && *a.ParentID == parentID
	}, byCode), nil
}

func (m *MemoryRepository) FindHierarchy(_ context.Context, tenantID string) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindHierarchy"); err != nil {
		return nil, err
	}
	return m.filter(func(a accounts.Account) bool {
		return a.TenantID == tenantID && a.IsActive
	}, byLevelCode), nil
}

func (m *MemoryRepository) FindAll(_ context.Context, tenantID string) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindAll"); err != nil {
		return nil, err
	}
	return m.filter(func(a accounts.Account) bool { return a.TenantID == tenantID }, byLevelCode), nil
}

func (m *MemoryRepository) ListTenants(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTenants"); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	tenants := make([]string, 0)
	for _, a := range m.rows {
		if _, ok := seen[a.TenantID]; !ok {
			seen[a.TenantID] = struct{}{}
			tenants = append(tenants, a.TenantID)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

func (m *MemoryRepository) Search(_ context.Context, tenantID, query string, filters accounts.SearchFilters) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Search"); err != nil {
		return nil, err
	}
	active := true
	if filters.IsActive != nil {
		active = *filters.IsActive
	}
	q := strings.ToLower(query)
	return m.filter(func(a accounts.Account) bool {
		if a.TenantID != tenantID || a.IsActive != active {
			return false
		}
		if q != "" && !strings.Contains(strings.ToLower(a.Name), q) && !strings.Contains(strings.ToLower(a.Code), q) {
			return false
		}
		if filters.AccountType != nil && a.Type != *filters.AccountType {
			return false
		}
		if filters.Currency != nil && a.Currency != *filters.Currency {
			return false
		}
		if filters.AllowPosting != nil && a.AllowPosting != *filters.AllowPosting {
			return false
		}
		return true
	}, byCode), nil
}

func (m *MemoryRepository) Update(_ context.Context, tenantID string, id int64, patch accounts.UpdateAccountData) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Update"); err != nil {
		return accounts.Account{}, err
	}
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if patch.Code.Set {
		if m.codeTaken(tenantID, patch.Code.Value, id) {
			return accounts.Account{}, accounts.ErrDuplicateCode
		}
		a.Code = patch.Code.Value
	}
	if patch.Name.Set {
		a.Name = patch.Name.Value
	}
	if patch.Type.Set {
		a.Type = patch.Type.Value
	}
	if patch.NormalBalance.Set {
		a.NormalBalance = patch.NormalBalance.Value
	}
	if patch.Currency.Set {
		a.Currency = patch.Currency.Value
	}
	if patch.AllowPosting.Set {
		a.AllowPosting = patch.AllowPosting.Value
	}
	a.UpdatedBy = patch.UpdatedBy
	a.UpdatedAt = m.Now()
	m.rows[id] = a
	return a, nil
}

func (m *MemoryRepository) Archive(_ context.Context, tenantID string, id int64, updatedBy string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Archive"); err != nil {
		return accounts.Account{}, err
	}
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, accounts.ErrNotFound
	}
	now := m.Now()
	a.IsActive = false
	a.EffectiveEndDate = &now
	a.UpdatedBy = updatedBy
	a.UpdatedAt = now
	m.rows[id] = a
	return a, nil
}

func (m *MemoryRepository) Reparent(_ context.Context, tenantID string, id int64, newParentID *int64, updatedBy string) (accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Reparent"); err != nil {
		return accounts.Account{}, err
	}
	a, ok := m.rows[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, accounts.ErrNotFound
	}
	level := 1
	if newParentID != nil {
		parent, ok := m.rows[*newParentID]
		if !ok || parent.TenantID != tenantID {
			return accounts.Account{}, accounts.ErrNotFound
		}
		level = parent.Level + 1
	}

	depths := map[int64]int{id: 0}
	frontier := []int64{id}
	maxDepth := 0
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, pid := range frontier {
			for _, child := range m.rows {
				if child.TenantID != tenantID || child.ParentID == nil || *child.ParentID != pid {
					continue
				}
				if _, seen := depths[child.ID]; seen {
					continue
				}
				depths[child.ID] = depths[pid] + 1
				if depths[child.ID] > maxDepth {
					maxDepth = depths[child.ID]
				}
				next = append(next, child.ID)
			}
		}
		frontier = next
	}
	if level+maxDepth > accounts.MaxHierarchyDepth {
		return accounts.Account{}, accounts.ErrDepthExceeded
	}

	now := m.Now()
	a.ParentID = newParentID
	a.UpdatedBy = updatedBy
	a.UpdatedAt = now
	m.rows[id] = a
	for descendant, depth := range depths {
		row := m.rows[descendant]
		row.Level = level + depth
		m.rows[descendant] = row
	}
	return m.rows[id], nil
}

func (m *MemoryRepository) HasChildren(_ context.Context, tenantID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("HasChildren"); err != nil {
		return false, err
	}
	for _, a := range m.rows {
		if a.TenantID == tenantID && a.IsActive && a.ParentID != nil && *a.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) codeTaken(tenantID, code string, except int64) bool {
	for _, a := range m.rows {
		if a.TenantID == tenantID && a.Code == code && a.ID != except {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) filter(keep func(accounts.Account) bool, less func(a, b accounts.Account) bool) []accounts.Account {
	out := make([]accounts.Account, 0)
	for _, a := range m.rows {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCode(a, b accounts.Account) bool {
	return a.Code < b.Code
}

func byLevelCode(a, b accounts.Account) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	return a.Code < b.Code
}
