package adapter

import (
	"net/url"
	"strings"
)

// Descriptor describes how to reach a backend. It is a value: strategies
// derive per-tenant descriptors from a base descriptor without mutating it.
type Descriptor struct {
	// URL is the backend connection string (DSN).
	URL string

	// Database overrides the database named in the URL, when set.
	Database string

	// Schema selects the active schema for the connection's lifetime,
	// on families that support schema namespaces.
	Schema string

	// Params carries adapter-specific options (pool sizes, timeouts).
	Params map[string]string
}

// WithSchema returns a copy of d scoped to the given schema.
func (d Descriptor) WithSchema(schema string) Descriptor {
	d.Schema = schema
	return d
}

// WithDatabase returns a copy of d pointed at the given database.
func (d Descriptor) WithDatabase(db string) Descriptor {
	d.Database = db
	return d
}

// Redacted returns the URL with any password removed, for logging.
func (d Descriptor) Redacted() string {
	u, err := url.Parse(d.URL)
	if err != nil || u.User == nil {
		return d.URL
	}
	if _, has := u.User.Password(); has {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}

// TenantPlaceholder is the token replaced with the sanitized tenant id in
// database-per-tenant URL templates.
const TenantPlaceholder = "{tenant}"

// ExpandTemplate substitutes the tenant placeholder in a URL template.
func ExpandTemplate(template, tenantID string) string {
	return strings.ReplaceAll(template, TenantPlaceholder, tenantID)
}
