package directory

import (
	"time"

	"gasopper/access"
)

// User is the domain representation of a directory entry. It mirrors the
// users table and carries no presentation tags so different surfaces can
// shape it as they need.
type User struct {
	ID           int
	EmployeeID   string
	Email        string
	PhoneNumber  string
	Address      string
	FirstName    string
	LastName     string
	RoleID       access.Role
	ManagerID    *int
	PasswordHash string
	Active       bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// RoleInfo is a row of the roles reference table.
type RoleInfo struct {
	ID   access.Role
	Name string
}

// CreateUserParams contains the write parameters for a new directory entry.
type CreateUserParams struct {
	EmployeeID  string
	Email       string
	PhoneNumber string
	Address     string
	FirstName   string
	LastName    string
	RoleID      access.Role
	ManagerID   *int
	Password    string
}

// UpdateUserParams is a field-level patch: nil leaves the current value in
// place. Role, manager, and active changes are honored for Admin actors only.
type UpdateUserParams struct {
	EmployeeID  *string
	Email       *string
	PhoneNumber *string
	Address     *string
	FirstName   *string
	LastName    *string
	RoleID      *access.Role
	ManagerID   *int
	Active      *bool
}
