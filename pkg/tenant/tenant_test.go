package tenant

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain lowercase", "acme", "acme", false},
		{"uppercase folded", "Acme", "acme", false},
		{"mixed case and digits", "Team42", "team42", false},
		{"hyphen and underscore kept", "team-a_b", "team-a_b", false},
		{"spaces replaced", "acme corp", "acme_corp", false},
		{"special chars replaced", "acme.corp/eu!", "acme_corp_eu_", false},
		{"unicode replaced", "café", "caf_", false},
		{"empty", "", "", true},
		{"only separators", "--__", "", true},
		{"only specials", "!!!", "", true},
		{"injection attempt", "x'; DROP SCHEMA public;--", "x___drop_schema_public_--", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Sanitize(%q) = %q, want error", tt.in, got)
				}
				if !errors.Is(err, ErrInvalidTenantID) {
					t.Errorf("error = %v, want ErrInvalidTenantID", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Sanitize(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{"acme", "Acme Corp", "team-a_b", "x.y/z", "42"}
	for _, in := range inputs {
		once, err := Sanitize(in)
		if err != nil {
			t.Fatalf("Sanitize(%q): %v", in, err)
		}
		twice, err := Sanitize(once)
		if err != nil {
			t.Fatalf("Sanitize(Sanitize(%q)): %v", in, err)
		}
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q != %q", in, once, twice)
		}
		if !IsSanitized(once) {
			t.Errorf("IsSanitized(%q) = false after Sanitize", once)
		}
	}
}

func TestSanitize_MaxLength(t *testing.T) {
	ok := strings.Repeat("a", 63)
	if _, err := Sanitize(ok); err != nil {
		t.Fatalf("63-char id rejected: %v", err)
	}
	if _, err := Sanitize(ok + "a"); err == nil {
		t.Fatal("64-char id accepted, want error")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	id, ok := FromContext(ctx)
	if !ok || id != "acme" {
		t.Fatalf("FromContext = (%q, %v), want (acme, true)", id, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("FromContext on empty context returned ok")
	}
}

func TestOpError(t *testing.T) {
	base := errors.New("connection refused")
	err := NewOpError("connect", "acme", base)
	if !errors.Is(err, base) {
		t.Fatal("OpError does not unwrap to the cause")
	}
	var op *OpError
	if !errors.As(err, &op) {
		t.Fatal("errors.As failed for OpError")
	}
	if op.Tenant != "acme" || op.Op != "connect" {
		t.Errorf("OpError fields = %+v", op)
	}
	if !strings.Contains(err.Error(), "acme") || !strings.Contains(err.Error(), "connect") {
		t.Errorf("OpError message missing context: %q", err.Error())
	}
	if NewOpError("connect", "acme", nil) != nil {
		t.Fatal("NewOpError(nil) should be nil")
	}
}
