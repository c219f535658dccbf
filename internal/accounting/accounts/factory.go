package accounts

import (
	"log/slog"

	"github.com/odyssey-erp/core-ledger/internal/shared"
)

// Factory holds the shared collaborators and builds a Service per caller.
type Factory struct {
	Repo     Repository
	Policies *Policies
	Logger   *slog.Logger
	Cache    *HierarchyCache
	Audit    AuditPort
	Observer OperationObserver
}

// ForTenant returns a Service bound to the caller's tenant and user.
func (f *Factory) ForTenant(tc shared.TenantContext) (*Service, error) {
	svc, err := NewService(f.Repo, f.Policies, f.Logger, tc)
	if err != nil {
		return nil, err
	}
	svc.cache = f.Cache
	svc.audit = f.Audit
	svc.observer = f.Observer
	return svc, nil
}
