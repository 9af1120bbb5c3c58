package models

// UserRole represents the role claim issued by the hosted auth service
type UserRole string

const (
	UserRoleVisitor UserRole = "visitor"
	UserRoleAdmin   UserRole = "admin"
)

// Principal is the authenticated caller resolved from a bearer token
type Principal struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

// IsAdmin returns true if the caller may use the back-office endpoints
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == UserRoleAdmin
}
