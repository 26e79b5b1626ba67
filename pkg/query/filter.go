// Package query defines the generic filter tree shared by every adapter
// family and the compiler that turns a tree into a parameterized SQL WHERE
// clause. Filters use a small mongo-style vocabulary: plain keys are
// equality conditions, and the operator keys "$and" / "$or" combine
// sub-filters.
package query

import (
	"fmt"
	"sort"
)

// Operator keys recognized at the top level of a Filter.
const (
	OpAnd = "$and"
	OpOr  = "$or"
)

// Filter is a filter tree over record fields. Plain keys are equality
// conditions; OpAnd and OpOr hold []Filter sub-trees.
type Filter map[string]any

// Eq returns a single-field equality filter.
func Eq(field string, value any) Filter {
	return Filter{field: value}
}

// And combines filters into a conjunction.
func And(filters ...Filter) Filter {
	return Filter{OpAnd: filters}
}

// Or combines filters into a disjunction.
func Or(filters ...Filter) Filter {
	return Filter{OpOr: filters}
}

// WithTenant merges a tenant equality condition into f, returning a new
// filter. The rules close the common isolation leak around disjunctions:
//
//   - nil or empty filter -> plain {field: tenantID}
//   - a filter containing $or at the top level is wrapped whole in an
//     outer $and with the tenant condition, so the tenant filter applies
//     to every branch rather than attaching to one
//   - a top-level $and gains the tenant condition as an extra conjunct
//   - otherwise the tenant condition is added as a plain key
//
// Any caller-supplied value for the tenant field is overwritten.
func WithTenant(f Filter, field, tenantID string) Filter {
	cond := Filter{field: tenantID}
	if len(f) == 0 {
		return cond
	}
	if _, hasOr := f[OpOr]; hasOr {
		return And(cond, f)
	}
	if sub, hasAnd := f[OpAnd]; hasAnd {
		conj, ok := sub.([]Filter)
		if !ok {
			return And(cond, f)
		}
		merged := make([]Filter, 0, len(conj)+1)
		merged = append(merged, cond)
		for _, c := range conj {
			merged = append(merged, WithoutField(c, field))
		}
		out := cloneShallow(f)
		out[OpAnd] = merged
		return out
	}
	out := cloneShallow(f)
	out[field] = tenantID
	return out
}

// WithoutField returns f with any top-level equality on field removed.
// Operator sub-trees are left untouched; OR branches constraining the
// tenant field are harmless once the outer conjunct pins it.
func WithoutField(f Filter, field string) Filter {
	if _, ok := f[field]; !ok {
		return f
	}
	out := cloneShallow(f)
	delete(out, field)
	return out
}

// Fields returns the plain (non-operator) keys of f in sorted order.
func Fields(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		if k != OpAnd && k != OpOr {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Validate walks the tree and rejects unknown $-operators and malformed
// operator values. Unknown operators are an error rather than a pass-through
// so an unrecognized construct can never bypass tenant scoping.
func Validate(f Filter) error {
	for k, v := range f {
		if len(k) > 0 && k[0] == '$' {
			if k != OpAnd && k != OpOr {
				return fmt.Errorf("unsupported filter operator %q", k)
			}
			sub, ok := v.([]Filter)
			if !ok {
				return fmt.Errorf("operator %q requires []Filter, got %T", k, v)
			}
			for _, s := range sub {
				if err := Validate(s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func cloneShallow(f Filter) Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}
