// Package tenant carries the isolation boundary every ledger query filters by.
// A scope is the owning user plus an optional shared company code; users of
// the same company see the same designations, clients and movements.
package tenant

import (
	"context"
	"errors"
	"strings"
)

// ErrNoScope is returned when a request reaches the ledger without a tenant scope.
var ErrNoScope = errors.New("tenant scope not found in context")

// Scope identifies the tenant a request acts for.
type Scope struct {
	UserID      string `json:"user_id"`
	CompanyCode string `json:"company_code,omitempty"`
}

// Key is the value stored in the scope_key column of every ledger row.
// Company scopes take precedence so that colleagues share one ledger.
func (s Scope) Key() string {
	if code := strings.TrimSpace(s.CompanyCode); code != "" {
		return "c:" + strings.ToLower(code)
	}
	return "u:" + s.UserID
}

// Valid reports whether the scope can be used for queries.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.UserID) != ""
}

// String implements fmt.Stringer for log fields.
func (s Scope) String() string {
	return s.Key()
}

type scopeKey struct{}

// WithScope stores the scope in context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the scope from context.
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || !s.Valid() {
		return Scope{}, ErrNoScope
	}
	return s, nil
}
