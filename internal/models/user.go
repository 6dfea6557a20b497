package models

// Role determines what a user may see and do.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleUser    Role = "User"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleUser
}

// User represents a user account.
//
// Password holds either the plaintext credential or a bcrypt hash.
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}

// Snapshot copies the identity fields of u.
func (u User) Snapshot() Snapshot {
	return Snapshot{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		Department: u.Department,
	}
}

// NewUser is a user record before an id has been assigned.
type NewUser struct {
	Username   string
	Email      string
	Password   string
	Role       Role
	Department string
}

// UserPatch carries the fields to change on a user. Nil fields are left alone.
type UserPatch struct {
	Username   *string
	Email      *string
	Password   *string
	Role       *Role
	Department *string
}

// Apply merges the non-nil fields of p into u.
func (p UserPatch) Apply(u User) User {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	return u
}

// Departments lists the departments a user can belong to.
var Departments = []string{"Management", "Engineering", "Finance", "Marketing", "Sales", "HR"}
