// Package adapter defines the driver facade every backend family
// implements: a uniform connect/data/namespace contract that the isolation
// strategies drive without knowing which backend sits underneath.
package adapter

import (
	"context"

	"github.com/tenantkit/tenantkit/pkg/query"
)

// NamespaceKind identifies the backend-level container a namespace
// operation targets.
type NamespaceKind string

const (
	// KindDatabase targets a full database.
	KindDatabase NamespaceKind = "database"
	// KindSchema targets a schema inside a shared database.
	KindSchema NamespaceKind = "schema"
)

// Handle is a live backend connection with the uniform data contract.
// Records are generic field maps; collections are tables on relational
// backends and collections on document backends. Handles are safe for
// concurrent use by multiple callers.
type Handle interface {
	// Insert stores a record and returns its id. Backends that generate
	// ids do so when the record carries none.
	Insert(ctx context.Context, collection string, record map[string]any) (string, error)

	// Find returns all records matching the filter.
	Find(ctx context.Context, collection string, filter query.Filter) ([]map[string]any, error)

	// Update applies changes to matching records and returns the number
	// of records affected.
	Update(ctx context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error)

	// Delete removes matching records and returns the number removed.
	Delete(ctx context.Context, collection string, filter query.Filter) (int64, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, collection string, filter query.Filter) (int64, error)

	// Exec runs a raw backend command. Tenant-scoped handles refuse it.
	Exec(ctx context.Context, command string, args ...any) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Adapter is the backend-family driver facade. Namespace names passed to
// CreateNamespace and DropNamespace must already be sanitized by the
// caller; adapters verify but never re-sanitize.
type Adapter interface {
	// Name identifies the adapter family ("postgres", "mysql", "gorm", "mongo").
	Name() string

	// Connect establishes a backend connection for the descriptor.
	Connect(ctx context.Context, d Descriptor) (Handle, error)

	// Disconnect closes a handle obtained from Connect.
	Disconnect(ctx context.Context, h Handle) error

	// CreateNamespace creates a backend container of the given kind.
	// Families without a concept of the kind return tenant.ErrNotSupported.
	CreateNamespace(ctx context.Context, h Handle, kind NamespaceKind, name string) error

	// DropNamespace removes a container and its dependent objects.
	DropNamespace(ctx context.Context, h Handle, kind NamespaceKind, name string) error

	// ListNamespaces returns the names of all containers of the kind.
	ListNamespaces(ctx context.Context, h Handle, kind NamespaceKind) ([]string, error)

	// WrapForTenant returns a handle whose data operations are
	// transparently scoped to the tenant.
	WrapForTenant(h Handle, tenantID string) Handle
}
