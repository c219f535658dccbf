package accountstest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/core-ledger/internal/shared"
)

// AuditRecorder captures audit entries in memory.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	Err     error
}

func (r *AuditRecorder) Record(_ context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.entries = append(r.entries, log)
	return nil
}

// Actions lists the recorded actions in order.
func (r *AuditRecorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// Entries returns a copy of the recorded entries.
func (r *AuditRecorder) Entries() []shared.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.AuditLog(nil), r.entries...)
}

// OperationRecorder captures service operation outcomes as "operation:outcome".
type OperationRecorder struct {
	mu      sync.Mutex
	Outcome []string
}

func (r *OperationRecorder) ObserveAccountOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcome = append(r.Outcome, operation+":"+outcome)
}
