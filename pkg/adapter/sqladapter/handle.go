package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tenantkit/tenantkit/pkg/query"
)

// handle wraps a database/sql pool with the generic data contract.
type handle struct {
	db      *sql.DB
	dialect query.Dialect
}

func (h *handle) placeholder(n int) string {
	if h.dialect == query.DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Insert builds a parameterized INSERT. Columns are emitted in sorted
// order so generated SQL is deterministic. An id column is generated when
// the record has none.
func (h *handle) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	rec := make(map[string]any, len(record)+1)
	for k, v := range record {
		rec[k] = v
	}
	id, ok := rec["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		rec["id"] = id
	}

	cols := make([]string, 0, len(rec))
	for c := range rec {
		if err := validIdent(c); err != nil {
			return "", err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	phs := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		phs[i] = h.placeholder(i + 1)
		args[i] = rec[c]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		collection, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := h.db.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (h *handle) Find(ctx context.Context, collection string, filter query.Filter) ([]map[string]any, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s", collection, where)
	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (h *handle) Update(ctx context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, fmt.Errorf("update %s: empty change set", collection)
	}

	cols := make([]string, 0, len(changes))
	for c := range changes {
		if err := validIdent(c); err != nil {
			return 0, err
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		sets[i] = c + " = " + h.placeholder(i+1)
		args = append(args, changes[c])
	}

	where, whereArgs, err := query.CompileWhereOffset(filter, h.dialect, len(cols))
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", collection, strings.Join(sets, ", "), where)
	res, err := h.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (h *handle) Delete(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", collection, where)
	res, err := h.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.RowsAffected()
}

func (h *handle) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	where, args, err := query.CompileWhere(filter, h.dialect)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", collection, where)
	var n int64
	if err := h.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (h *handle) Exec(ctx context.Context, command string, args ...any) error {
	if _, err := h.db.ExecContext(ctx, command, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (h *handle) Close(_ context.Context) error {
	return h.db.Close()
}

func validIdent(name string) error {
	if !query.ValidIdent(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func validCollection(name string) error {
	if !query.ValidCollection(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// scanRows converts a generic result set into field maps. Byte slices
// come back as strings; drivers return them for text columns.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = vals[i]
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
