package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTenant_EmptyFilter(t *testing.T) {
	got := WithTenant(nil, "tenant_id", "acme")
	assert.Equal(t, Filter{"tenant_id": "acme"}, got)

	got = WithTenant(Filter{}, "tenant_id", "acme")
	assert.Equal(t, Filter{"tenant_id": "acme"}, got)
}

func TestWithTenant_PlainEquality(t *testing.T) {
	f := Filter{"name": "x"}
	got := WithTenant(f, "tenant_id", "acme")
	assert.Equal(t, Filter{"name": "x", "tenant_id": "acme"}, got)
	// Input is not mutated.
	assert.Equal(t, Filter{"name": "x"}, f)
}

func TestWithTenant_OverwritesCallerTenant(t *testing.T) {
	f := Filter{"tenant_id": "other", "name": "x"}
	got := WithTenant(f, "tenant_id", "acme")
	assert.Equal(t, "acme", got["tenant_id"])
}

func TestWithTenant_OrWrappedWhole(t *testing.T) {
	// The classic leak: tenant filter must wrap the entire OR, not attach
	// to one branch.
	f := Or(Eq("status", "active"), Eq("status", "pending"))
	got := WithTenant(f, "tenant_id", "acme")

	conj, ok := got[OpAnd].([]Filter)
	require.True(t, ok, "expected outer $and, got %v", got)
	require.Len(t, conj, 2)
	assert.Equal(t, Filter{"tenant_id": "acme"}, conj[0])
	_, hasOr := conj[1][OpOr]
	assert.True(t, hasOr, "original OR must survive as a conjunct")
	// No tenant key may leak into the top level beside the $and.
	_, topLevel := got["tenant_id"]
	assert.False(t, topLevel)
}

func TestWithTenant_AndGainsConjunct(t *testing.T) {
	f := And(Eq("a", 1), Eq("b", 2))
	got := WithTenant(f, "tenant_id", "acme")
	conj, ok := got[OpAnd].([]Filter)
	require.True(t, ok)
	require.Len(t, conj, 3)
	assert.Equal(t, Filter{"tenant_id": "acme"}, conj[0])
}

func TestWithTenant_AndConjunctTenantOverridden(t *testing.T) {
	f := And(Eq("tenant_id", "other"), Eq("b", 2))
	got := WithTenant(f, "tenant_id", "acme")
	conj := got[OpAnd].([]Filter)
	for i, c := range conj {
		if v, ok := c["tenant_id"]; ok {
			assert.Equal(t, "acme", v, "conjunct %d carries a foreign tenant", i)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		f       Filter
		wantErr bool
	}{
		{"empty", Filter{}, false},
		{"plain", Eq("a", 1), false},
		{"and of or", And(Or(Eq("a", 1), Eq("b", 2))), false},
		{"unknown operator", Filter{"$where": "1"}, true},
		{"nested unknown", And(Filter{"$nin": []any{1}}), true},
		{"malformed and", Filter{OpAnd: "not a list"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.f)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
