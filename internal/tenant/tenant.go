// Package tenant validates the namespace identifiers that select a tenant's
// isolated schema.
package tenant

import (
	"fmt"
	"regexp"
	"strings"

	"atlas-auth/internal/model"
)

const (
	// Header carries the namespace selector on inbound requests.
	Header = "X-Tenant-Schema"

	MaxLength = 63
)

var pattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Schemas that exist in every database and never hold tenant data.
var systemSchemas = map[string]struct{}{
	"information_schema": {},
	"pg_catalog":         {},
	"pg_toast":           {},
	"public":             {},
}

// Namespace is a validated schema identifier. The zero value is invalid; only
// Parse and MustParse produce values safe to interpolate into a
// schema-qualifying statement.
type Namespace struct {
	name string
}

func (n Namespace) String() string {
	return n.name
}

func (n Namespace) IsZero() bool {
	return n.name == ""
}

// Quoted returns the identifier in double quotes for use in DDL.
func (n Namespace) Quoted() string {
	return `"` + n.name + `"`
}

// Valid reports whether raw is an acceptable namespace identifier.
func Valid(raw string) bool {
	return len(raw) <= MaxLength && pattern.MatchString(raw)
}

// Parse validates raw. An empty value selects fallback, which must itself be
// a valid identifier.
func Parse(raw, fallback string) (Namespace, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}

	if !Valid(raw) {
		return Namespace{}, fmt.Errorf("%w: %q must start with a letter, contain only letters, digits or underscore and be at most %d characters", model.ErrInvalidTenant, raw, MaxLength)
	}

	return Namespace{name: raw}, nil
}

func MustParse(raw string) Namespace {
	ns, err := Parse(raw, "")
	if err != nil {
		panic(err)
	}
	return ns
}

// IsSystem reports whether the schema is reserved by PostgreSQL or the
// shared public schema.
func IsSystem(name string) bool {
	if _, ok := systemSchemas[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "pg_")
}
