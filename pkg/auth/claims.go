package auth

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims accepted by the realizer service.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	// Books restricts the caller to these stock book IDs. Empty means all books.
	Books []string `json:"books,omitempty"`
}

// HasRole reports whether the claims include role.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// CanAccessBook reports whether the caller may operate on bookID.
func (c Claims) CanAccessBook(bookID string) bool {
	return len(c.Books) == 0 || slices.Contains(c.Books, bookID)
}

const (
	RoleOperator = "operator"
	RoleAuditor  = "auditor"
	RoleSystem   = "system"
)
