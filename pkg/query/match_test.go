package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	rec := map[string]any{"tenant_id": "acme", "status": "active", "n": 3}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty matches all", Filter{}, true},
		{"equality hit", Eq("status", "active"), true},
		{"equality miss", Eq("status", "pending"), false},
		{"missing field", Eq("ghost", 1), false},
		{"numeric loose equality", Eq("n", int64(3)), true},
		{"and both", And(Eq("status", "active"), Eq("tenant_id", "acme")), true},
		{"and one miss", And(Eq("status", "active"), Eq("tenant_id", "other")), false},
		{"or one hit", Or(Eq("status", "pending"), Eq("status", "active")), true},
		{"or all miss", Or(Eq("status", "pending"), Eq("status", "closed")), false},
		{"tenant wrap over or", WithTenant(Or(Eq("status", "active"), Eq("status", "x")), "tenant_id", "acme"), true},
		{"tenant wrap foreign tenant", WithTenant(Or(Eq("status", "active"), Eq("status", "x")), "tenant_id", "other"), false},
		{"null check miss", Filter{"status": nil}, false},
		{"null check hit", Filter{"deleted_at": nil}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(rec, tt.f))
		})
	}
}
