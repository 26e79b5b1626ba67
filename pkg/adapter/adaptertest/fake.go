// Package adaptertest provides an in-memory Adapter implementation with
// call counters, used across the strategy, cache, and registry test suites
// to assert connection lifecycle properties without a real backend.
package adaptertest

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/scope"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Fake is an in-memory adapter.Adapter. Handles opened against the same
// namespace (database/schema pair) share one dataset, which is what the
// isolation strategies rely on.
type Fake struct {
	// SupportsSchema controls whether schema namespaces are accepted.
	// False models a document-store family.
	SupportsSchema bool

	// ConnectDelay is applied inside Connect, for single-flight tests.
	ConnectDelay time.Duration

	// ConnectErr, when set, makes Connect fail.
	ConnectErr error

	connects    atomic.Int64
	disconnects atomic.Int64

	mu         sync.Mutex
	namespaces map[adapter.NamespaceKind]map[string]bool
	data       map[string]map[string][]map[string]any
	execLog    []string
}

// New returns a Fake with schema support enabled.
func New() *Fake {
	return &Fake{
		SupportsSchema: true,
		namespaces: map[adapter.NamespaceKind]map[string]bool{
			adapter.KindDatabase: {},
			adapter.KindSchema:   {},
		},
		data: map[string]map[string][]map[string]any{},
	}
}

// Connects returns the number of Connect calls made.
func (f *Fake) Connects() int64 { return f.connects.Load() }

// Disconnects returns the number of handles closed.
func (f *Fake) Disconnects() int64 { return f.disconnects.Load() }

// ExecLog returns raw commands executed through any handle.
func (f *Fake) ExecLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execLog...)
}

// Seed inserts a record directly into a namespace dataset.
func (f *Fake) Seed(database, schema, collection string, record map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := nsKeyFor(database, schema)
	if f.data[key] == nil {
		f.data[key] = map[string][]map[string]any{}
	}
	f.data[key][collection] = append(f.data[key][collection], copyRecord(record))
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Connect(ctx context.Context, d adapter.Descriptor) (adapter.Handle, error) {
	if f.ConnectDelay > 0 {
		select {
		case <-time.After(f.ConnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	f.connects.Add(1)
	return &handle{fake: f, key: descriptorKey(d)}, nil
}

func (f *Fake) Disconnect(ctx context.Context, h adapter.Handle) error {
	return h.Close(ctx)
}

func (f *Fake) CreateNamespace(_ context.Context, _ adapter.Handle, kind adapter.NamespaceKind, name string) error {
	if kind == adapter.KindSchema && !f.SupportsSchema {
		return fmt.Errorf("%w: schema namespaces", tenant.ErrNotSupported)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.namespaces[kind][name] {
		return fmt.Errorf("namespace %q already exists", name)
	}
	f.namespaces[kind][name] = true
	return nil
}

func (f *Fake) DropNamespace(_ context.Context, _ adapter.Handle, kind adapter.NamespaceKind, name string) error {
	if kind == adapter.KindSchema && !f.SupportsSchema {
		return fmt.Errorf("%w: schema namespaces", tenant.ErrNotSupported)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.namespaces[kind][name] {
		return fmt.Errorf("namespace %q does not exist", name)
	}
	delete(f.namespaces[kind], name)
	for key := range f.data {
		db, schema, _ := strings.Cut(key, "/")
		if (kind == adapter.KindDatabase && db == name) ||
			(kind == adapter.KindSchema && schema == name) {
			delete(f.data, key)
		}
	}
	return nil
}

func (f *Fake) ListNamespaces(_ context.Context, _ adapter.Handle, kind adapter.NamespaceKind) ([]string, error) {
	if kind == adapter.KindSchema && !f.SupportsSchema {
		return nil, fmt.Errorf("%w: schema namespaces", tenant.ErrNotSupported)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.namespaces[kind]))
	for name := range f.namespaces[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) WrapForTenant(h adapter.Handle, tenantID string) adapter.Handle {
	return scope.Wrap(h, tenantID, "")
}

// handle is a view over one namespace dataset.
type handle struct {
	fake   *Fake
	key    string
	closed atomic.Bool
}

func (h *handle) Insert(_ context.Context, collection string, record map[string]any) (string, error) {
	rec := copyRecord(record)
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		rec["id"] = id
	}
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	if h.fake.data[h.key] == nil {
		h.fake.data[h.key] = map[string][]map[string]any{}
	}
	h.fake.data[h.key][collection] = append(h.fake.data[h.key][collection], rec)
	return id, nil
}

func (h *handle) Find(_ context.Context, collection string, filter query.Filter) ([]map[string]any, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	var out []map[string]any
	for _, rec := range h.fake.data[h.key][collection] {
		if query.Matches(rec, filter) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (h *handle) Update(_ context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	var n int64
	for _, rec := range h.fake.data[h.key][collection] {
		if query.Matches(rec, filter) {
			for k, v := range changes {
				rec[k] = v
			}
			n++
		}
	}
	return n, nil
}

func (h *handle) Delete(_ context.Context, collection string, filter query.Filter) (int64, error) {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	kept := h.fake.data[h.key][collection][:0]
	var n int64
	for _, rec := range h.fake.data[h.key][collection] {
		if query.Matches(rec, filter) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	if h.fake.data[h.key] != nil {
		h.fake.data[h.key][collection] = kept
	}
	return n, nil
}

func (h *handle) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	recs, err := h.Find(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (h *handle) Exec(_ context.Context, command string, _ ...any) error {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	h.fake.execLog = append(h.fake.execLog, command)
	return nil
}

func (h *handle) Close(_ context.Context) error {
	if h.closed.CompareAndSwap(false, true) {
		h.fake.disconnects.Add(1)
	}
	return nil
}

func descriptorKey(d adapter.Descriptor) string {
	db := d.Database
	if db == "" {
		if u, err := url.Parse(d.URL); err == nil && len(u.Path) > 1 {
			db = u.Path[1:]
		}
	}
	return nsKeyFor(db, d.Schema)
}

func nsKeyFor(database, schema string) string {
	return database + "/" + schema
}

func copyRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
