// Package auth owns user accounts, roles and privileges, and password
// verification.
package auth

import (
	"errors"
	"slices"
	"time"

	"lsm/internal/validate"
)

// Privilege names seeded by the migrations.
const (
	PrivEditContents   = "edit_contents"
	PrivEditCategories = "edit_categories"
	PrivEditOtherUsers = "edit_other_users"
)

// TableUsers is the users table name.
const TableUsers = "users"

var (
	// ErrPermissionDenied is returned when the acting user lacks a privilege.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactiveUser is returned when a deactivated account tries to log in.
	ErrInactiveUser = errors.New("account is inactive")
	// ErrSelfAction is returned when a user tries to delete or deactivate
	// their own account.
	ErrSelfAction = errors.New("cannot delete or deactivate your own account")
)

// User is an admin panel account.
type User struct {
	ID           int64      `db:"id"`
	RoleID       int64      `db:"role_id"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Status       bool       `db:"status,always"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`

	RoleName   string   `db:"role_name"`
	Privileges []string `db:"-"`
}

func (User) TableName() string    { return TableUsers }
func (User) PrimaryKey() []string { return []string{"id"} }

// HasPrivilege reports whether the user's role grants name. A nil user has
// no privileges.
func (u *User) HasPrivilege(name string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Privileges, name)
}

// CanEdit reports whether u may edit other's account.
func (u *User) CanEdit(other int64) bool {
	if u == nil {
		return false
	}
	return u.ID == other || u.HasPrivilege(PrivEditOtherUsers)
}

// Role groups privileges.
type Role struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
}

func (Role) TableName() string    { return "roles" }
func (Role) PrimaryKey() []string { return []string{"id"} }

// UserCreateRules validates the new user form.
var UserCreateRules = validate.Rules{
	"name":             "required|min:2|max:80",
	"email":            "required|email|max:160",
	"role_id":          "required|integer",
	"password":         "required|min:8|max:72",
	"password_confirm": "required|matches:password",
	"status":           "in:0,1",
}

// UserUpdateRules validates the edit form; an empty password keeps the
// current one.
var UserUpdateRules = validate.Rules{
	"name":             "required|min:2|max:80",
	"email":            "required|email|max:160",
	"role_id":          "integer",
	"password":         "min:8|max:72",
	"password_confirm": "matches:password",
	"status":           "in:0,1",
}

// LoginRules validates the login form.
var LoginRules = validate.Rules{
	"email":    "required|email",
	"password": "required",
}
