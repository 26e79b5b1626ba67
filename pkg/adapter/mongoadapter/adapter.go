// Package mongoadapter implements the document-store adapter family on
// the official MongoDB driver. Databases are the only namespace kind the
// family has; schema operations fail with ErrNotSupported rather than
// silently no-op.
package mongoadapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/scope"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 100
	defaultMinPoolSize    = 10

	// metaCollection is the sentinel collection written on CreateNamespace
	// so a tenant database materializes and lists before its first real write.
	metaCollection = "tenantkit_meta"
)

// reservedDatabases are system databases excluded from namespace listings.
var reservedDatabases = map[string]bool{
	"admin":  true,
	"local":  true,
	"config": true,
}

// Adapter is the document-store driver facade.
type Adapter struct{}

var _ adapter.Adapter = (*Adapter)(nil)

// New returns the mongo adapter.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "mongo" }

// Connect establishes a pooled client and verifies it with a primary
// ping. Pool sizes and the connect timeout come from descriptor params.
func (a *Adapter) Connect(ctx context.Context, d adapter.Descriptor) (adapter.Handle, error) {
	if d.Schema != "" {
		return nil, fmt.Errorf("%w: document stores have no schema namespaces", tenant.ErrNotSupported)
	}

	opts := options.Client().ApplyURI(d.URL)
	opts.SetMaxPoolSize(paramUint(d.Params, "max_pool_size", defaultMaxPoolSize))
	opts.SetMinPoolSize(paramUint(d.Params, "min_pool_size", defaultMinPoolSize))
	opts.SetRetryWrites(true)
	opts.SetRetryReads(true)

	connectTimeout := defaultConnectTimeout
	if v, ok := d.Params["connect_timeout"]; ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			connectTimeout = parsed
		}
	}
	opts.SetConnectTimeout(connectTimeout)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", d.Redacted(), err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w", d.Redacted(), err)
	}

	dbName := d.Database
	if dbName == "" {
		dbName = databaseFromURL(d.URL)
	}
	if dbName == "" {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("descriptor for %s names no database", d.Redacted())
	}
	return &handle{client: client, db: client.Database(dbName)}, nil
}

func (a *Adapter) Disconnect(ctx context.Context, h adapter.Handle) error {
	return h.Close(ctx)
}

// CreateNamespace materializes a tenant database by writing a sentinel
// document; MongoDB creates databases lazily on first write.
func (a *Adapter) CreateNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	if kind != adapter.KindDatabase {
		return fmt.Errorf("%w: namespace kind %q on a document store", tenant.ErrNotSupported, kind)
	}
	mh, err := a.mongoHandle(h)
	if err != nil {
		return err
	}
	if !tenant.IsSanitized(name) {
		return fmt.Errorf("%w: unsanitized namespace name %q", tenant.ErrInvalidTenantID, name)
	}
	meta := mh.client.Database(name).Collection(metaCollection)
	_, err = meta.UpdateOne(ctx,
		bson.M{"_id": "tenantkit"},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	return nil
}

func (a *Adapter) DropNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	if kind != adapter.KindDatabase {
		return fmt.Errorf("%w: namespace kind %q on a document store", tenant.ErrNotSupported, kind)
	}
	mh, err := a.mongoHandle(h)
	if err != nil {
		return err
	}
	if !tenant.IsSanitized(name) {
		return fmt.Errorf("%w: unsanitized namespace name %q", tenant.ErrInvalidTenantID, name)
	}
	if err := mh.client.Database(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop database %q: %w", name, err)
	}
	return nil
}

func (a *Adapter) ListNamespaces(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind) ([]string, error) {
	if kind != adapter.KindDatabase {
		return nil, fmt.Errorf("%w: namespace kind %q on a document store", tenant.ErrNotSupported, kind)
	}
	mh, err := a.mongoHandle(h)
	if err != nil {
		return nil, err
	}
	all, err := mh.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return FilterReserved(all), nil
}

// FilterReserved removes system database names from a listing.
func FilterReserved(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !reservedDatabases[n] {
			out = append(out, n)
		}
	}
	return out
}

func (a *Adapter) WrapForTenant(h adapter.Handle, tenantID string) adapter.Handle {
	return scope.Wrap(h, tenantID, "")
}

func (a *Adapter) mongoHandle(h adapter.Handle) (*handle, error) {
	if s, ok := h.(*scope.Handle); ok {
		h = s.Unwrap()
	}
	mh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle is not a mongo handle", tenant.ErrNotSupported)
	}
	return mh, nil
}

func paramUint(params map[string]string, key string, def uint64) uint64 {
	if v, ok := params[key]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func databaseFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || len(u.Path) <= 1 {
		return ""
	}
	return u.Path[1:]
}
