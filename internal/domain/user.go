package domain

import "time"

type Role string

const (
	RoleResident Role = "resident"
	RoleAdmin    Role = "admin"
)

// AdminDormNumber is the dorm label reserved for the seeded administrator.
const AdminDormNumber = "0"

// User represents a registered resident or administrator.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DormNumber   string
	Role         Role
	CreatedAt    time.Time
}

// IsAdmin reports whether the user may use the administrative listings.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
