package migrate

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
)

// Locker serializes migration runs keyed by tenant, so two replicas
// migrating the same tenant never interleave DDL.
type Locker interface {
	// WithLock executes fn while holding the lock for key. It blocks
	// until the lock is acquired and releases it after fn returns.
	WithLock(ctx context.Context, key string, fn func() error) error
}

// NewLocker picks the lock implementation for the adapter family.
// Postgres gets advisory locks; other families fall back to a lock table.
// A nil handle yields a no-op locker for single-replica deployments.
func NewLocker(h adapter.Handle, family string) Locker {
	if h == nil {
		return noopLock{}
	}
	if family == "postgres" {
		return &advisoryLock{h: h}
	}
	return &tableLock{h: h}
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, _ string, fn func() error) error { return fn() }

// advisoryLock serializes through pg_advisory_lock, keyed by a checksum
// of the tenant id.
type advisoryLock struct {
	h adapter.Handle
}

func (l *advisoryLock) WithLock(ctx context.Context, key string, fn func() error) error {
	id := int64(crc32.ChecksumIEEE([]byte("tenant-migration:" + key)))
	if err := l.h.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		return fmt.Errorf("acquire migration lock for %s: %w", key, err)
	}
	defer func() {
		_ = l.h.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", id)
	}()
	return fn()
}

const (
	lockCollection = "tenant_migration_lock"
	lockRetries    = 30
	lockInterval   = time.Second
	staleLockAge   = 5 * time.Minute
)

// tableLock is the insert-or-fail fallback for families without advisory
// locks. A held lock is one row keyed by tenant; rows older than
// staleLockAge are treated as crash leftovers and reclaimed. A unique key
// on the id column closes the check-then-insert race on real backends.
type tableLock struct {
	h adapter.Handle
}

func (l *tableLock) WithLock(ctx context.Context, key string, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	acquired := false
	for i := 0; i < lockRetries; i++ {
		held, err := l.heldFresh(ctx, key)
		if err != nil {
			return fmt.Errorf("inspect migration lock for %s: %w", key, err)
		}
		if !held {
			_, err := l.h.Insert(ctx, lockCollection, map[string]any{
				"id":        key,
				"locked_at": time.Now().UTC().Format(time.RFC3339),
				"locked_by": hostname,
			})
			if err == nil {
				acquired = true
				break
			}
			// Insert lost the race to another holder; fall through to wait.
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockInterval):
		}
	}
	if !acquired {
		return fmt.Errorf("migration lock for %s not acquired after %d attempts", key, lockRetries)
	}

	defer func() {
		_, _ = l.h.Delete(context.Background(), lockCollection, query.Eq("id", key))
	}()
	return fn()
}

// heldFresh reports whether a live lock row exists for key, reclaiming
// stale or unreadable rows along the way.
func (l *tableLock) heldFresh(ctx context.Context, key string) (bool, error) {
	rows, err := l.h.Find(ctx, lockCollection, query.Eq("id", key))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	raw, _ := rows[0]["locked_at"].(string)
	lockedAt, perr := time.Parse(time.RFC3339, raw)
	if perr == nil && time.Since(lockedAt) < staleLockAge {
		return true, nil
	}
	if _, err := l.h.Delete(ctx, lockCollection, query.Eq("id", key)); err != nil {
		return false, err
	}
	return false, nil
}
