package tenant

import (
	"errors"
	"fmt"
)

// Sentinel errors for the registry error taxonomy. Callers match these with
// errors.Is; backend failures are additionally wrapped in an OpError that
// carries the tenant id and the attempted operation.
var (
	// ErrInvalidTenantID reports a malformed or empty tenant identifier.
	// It is raised before any backend is contacted.
	ErrInvalidTenantID = errors.New("invalid tenant id")

	// ErrNotSupported reports an operation that is not meaningful for the
	// configured isolation strategy or backend family.
	ErrNotSupported = errors.New("operation not supported")

	// ErrTenantAlreadyExists reports a createTenant precondition violation.
	ErrTenantAlreadyExists = errors.New("tenant already exists")

	// ErrTenantNotFound reports a lifecycle operation against a tenant the
	// backend has no namespace or rows for.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConfiguration reports an invalid strategy or adapter selection.
	// It is fatal and raised at startup, before serving begins.
	ErrConfiguration = errors.New("invalid configuration")
)

// OpError wraps a backend-reported failure with the tenant id and the
// operation that was attempted, so the error is actionable without
// inspecting internal state.
type OpError struct {
	Op     string
	Tenant string
	Err    error
}

func (e *OpError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s (tenant %q): %v", e.Op, e.Tenant, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with operation and tenant context. Returns nil when
// err is nil so call sites can wrap unconditionally.
func NewOpError(op, tenantID string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Tenant: tenantID, Err: err}
}
