package models

import "time"

// UserRole represents the reviewer roles plus administrative roles.
type UserRole string

const (
	RoleSuperAdmin    UserRole = "SUPERADMIN"
	RoleAdmin         UserRole = "ADMIN"
	RoleRequisitioner UserRole = "REQUISITIONER"
	RoleSPS           UserRole = "SPS"
	RoleVPAcad        UserRole = "VP_ACAD"
	RoleDean          UserRole = "DEAN"
	RoleFinance       UserRole = "FINANCE"
	RolePresident     UserRole = "PRESIDENT"
)

// User represents an application user stored in the users table.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
