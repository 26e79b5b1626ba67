package gormadapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tenantkit/tenantkit/pkg/query"
)

// handle wraps a gorm session with the generic data contract.
type handle struct {
	db      *gorm.DB
	dialect query.Dialect
}

func (h *handle) table(ctx context.Context, collection string) (*gorm.DB, error) {
	if !query.ValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	return h.db.WithContext(ctx).Table(collection), nil
}

func (h *handle) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	tx, err := h.table(ctx, collection)
	if err != nil {
		return "", err
	}
	rec := make(map[string]any, len(record)+1)
	for k, v := range record {
		if !query.ValidIdent(k) {
			return "", fmt.Errorf("invalid field name %q", k)
		}
		rec[k] = v
	}
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		rec["id"] = id
	}
	if err := tx.Create(rec).Error; err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (h *handle) Find(ctx context.Context, collection string, filter query.Filter) ([]map[string]any, error) {
	tx, err := h.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := tx.Where(where, args...).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	return out, nil
}

func (h *handle) Update(ctx context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error) {
	tx, err := h.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("update %s: empty change set", collection)
	}
	for k := range changes {
		if !query.ValidIdent(k) {
			return 0, fmt.Errorf("invalid field name %q", k)
		}
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return 0, err
	}
	res := tx.Where(where, args...).Updates(changes)
	if res.Error != nil {
		return 0, fmt.Errorf("update %s: %w", collection, res.Error)
	}
	return res.RowsAffected, nil
}

func (h *handle) Delete(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if !query.ValidCollection(collection) {
		return 0, fmt.Errorf("invalid collection name %q", collection)
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return 0, err
	}
	// gorm's Delete wants a model value; generic rows go through Exec.
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", collection, where)
	res := h.db.WithContext(ctx).Exec(stmt, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, res.Error)
	}
	return res.RowsAffected, nil
}

func (h *handle) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	tx, err := h.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Where(where, args...).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (h *handle) Exec(ctx context.Context, command string, args ...any) error {
	if err := h.db.WithContext(ctx).Exec(command, args...).Error; err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (h *handle) Close(_ context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
