package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the placeholder style for compiled SQL.
type Dialect int

const (
	// DialectPostgres uses numbered placeholders ($1, $2, ...).
	DialectPostgres Dialect = iota
	// DialectMySQL uses positional placeholders (?).
	DialectMySQL
)

// identRe matches a safe SQL identifier. Column and table names that do not
// match are rejected before any interpolation.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is a safe SQL identifier.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// ValidCollection reports whether name is a safe collection (table) name.
// One schema qualifier is allowed, as in "information_schema.tables".
func ValidCollection(name string) bool {
	first, rest, qualified := strings.Cut(name, ".")
	if !qualified {
		return identRe.MatchString(name)
	}
	return identRe.MatchString(first) && identRe.MatchString(rest)
}

// CompileWhere compiles a filter tree into a SQL boolean expression with
// driver placeholders. An empty filter compiles to "1=1" with no arguments.
// Field names are validated as identifiers; values are always passed as
// parameters, never interpolated.
func CompileWhere(f Filter, d Dialect) (string, []any, error) {
	return CompileWhereOffset(f, d, 0)
}

// CompileWhereOffset is CompileWhere with placeholder numbering starting
// after offset earlier arguments. Statements that bind arguments before
// the WHERE clause (UPDATE ... SET) use it to keep postgres placeholder
// numbers aligned with argument positions.
func CompileWhereOffset(f Filter, d Dialect, offset int) (string, []any, error) {
	c := &compiler{dialect: d, offset: offset}
	clause, err := c.compile(f)
	if err != nil {
		return "", nil, err
	}
	if clause == "" {
		return "1=1", nil, nil
	}
	return clause, c.args, nil
}

type compiler struct {
	dialect Dialect
	offset  int
	args    []any
}

func (c *compiler) placeholder() string {
	if c.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", c.offset+len(c.args))
	}
	return "?"
}

func (c *compiler) compile(f Filter) (string, error) {
	if err := Validate(f); err != nil {
		return "", err
	}

	var parts []string

	// Plain equality conditions, in stable field order.
	for _, field := range Fields(f) {
		if !ValidIdent(field) {
			return "", fmt.Errorf("invalid field name %q", field)
		}
		v := f[field]
		if v == nil {
			parts = append(parts, field+" IS NULL")
			continue
		}
		c.args = append(c.args, v)
		parts = append(parts, field+" = "+c.placeholder())
	}

	if sub, ok := f[OpAnd].([]Filter); ok {
		clause, err := c.compileList(sub, " AND ")
		if err != nil {
			return "", err
		}
		if clause != "" {
			parts = append(parts, clause)
		}
	}
	if sub, ok := f[OpOr].([]Filter); ok {
		clause, err := c.compileList(sub, " OR ")
		if err != nil {
			return "", err
		}
		if clause != "" {
			parts = append(parts, clause)
		}
	}

	return strings.Join(parts, " AND "), nil
}

func (c *compiler) compileList(sub []Filter, sep string) (string, error) {
	var branches []string
	for _, s := range sub {
		clause, err := c.compile(s)
		if err != nil {
			return "", err
		}
		if clause != "" {
			branches = append(branches, parenWrap(clause))
		}
	}
	if len(branches) == 0 {
		return "", nil
	}
	return "(" + strings.Join(branches, sep) + ")", nil
}

// parenWrap parenthesizes clause unless it is already a single balanced
// paren group.
func parenWrap(clause string) string {
	if len(clause) >= 2 && clause[0] == '(' && clause[len(clause)-1] == ')' {
		depth := 0
		for i, r := range clause {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 && i < len(clause)-1 {
				depth = -1
			}
			if depth < 0 {
				break
			}
		}
		if depth == 0 {
			return clause
		}
	}
	return "(" + clause + ")"
}
