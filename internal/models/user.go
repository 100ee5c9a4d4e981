package models

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleViewer UserRole = "viewer"
)

// Actor is the authenticated identity performing a catalog mutation.
type Actor struct {
	ID   uint
	Name string
	Role UserRole
}
