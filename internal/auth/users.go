package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"lsm/internal/mapper"
)

// UserMapper persists users and resolves their privileges.
type UserMapper struct {
	m *mapper.Mapper
}

// NewUserMapper binds a UserMapper to m.
func NewUserMapper(m *mapper.Mapper) *UserMapper {
	return &UserMapper{m: m}
}

const userSelect = `
    SELECT u.*, r.name AS role_name
    FROM users u
    JOIN roles r ON r.id = u.role_id`

// Index lists one page of users, optionally filtered by a name or email term.
func (um *UserMapper) Index(ctx context.Context, p mapper.Pagination, search string) ([]User, mapper.Pagination, error) {
	s := um.m.Store()
	var (
		where string
		args  []any
	)
	if term := strings.TrimSpace(search); term != "" {
		d := s.Dialect()
		where = " WHERE (" + d.ILike("u.name") + " OR " + d.ILike("u.email") + ")"
		like := "%" + term + "%"
		args = []any{like, like}
	}
	total, err := mapper.Count(ctx, s, "SELECT COUNT(1) FROM users u"+where, args...)
	if err != nil {
		return nil, p, fmt.Errorf("count users: %w", err)
	}
	p = p.WithTotal(total)
	items, err := mapper.Select[User](ctx, s, userSelect+where+" ORDER BY u.name LIMIT ? OFFSET ?", append(args, p.Limit(), p.Offset())...)
	if err != nil {
		return nil, p, fmt.Errorf("list users: %w", err)
	}
	return items, p, nil
}

// Find loads one user with role name and privileges.
func (um *UserMapper) Find(ctx context.Context, id int64) (*User, error) {
	return um.load(ctx, userSelect+" WHERE u.id = ?", id)
}

// ByEmail loads one user by email, case-insensitively.
func (um *UserMapper) ByEmail(ctx context.Context, email string) (*User, error) {
	return um.load(ctx, userSelect+" WHERE LOWER(u.email) = LOWER(?)", strings.TrimSpace(email))
}

func (um *UserMapper) load(ctx context.Context, query string, args ...any) (*User, error) {
	u, err := mapper.Get[User](ctx, um.m.Store(), query, args...)
	if err != nil {
		return nil, err
	}
	privs, err := um.Privileges(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Privileges = privs
	return &u, nil
}

// Privileges lists the privilege names granted through the user's role.
func (um *UserMapper) Privileges(ctx context.Context, userID int64) ([]string, error) {
	rows, err := um.m.Store().Query(ctx, `
        SELECT p.name FROM privileges p
        JOIN role_privileges rp ON rp.privilege_id = p.id
        JOIN users u ON u.role_id = rp.role_id
        WHERE u.id = ?
        ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("load privileges: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Roles lists every role by id.
func (um *UserMapper) Roles(ctx context.Context) ([]Role, error) {
	return mapper.Select[Role](ctx, um.m.Store(), "SELECT * FROM roles ORDER BY id")
}

// RoleByName looks up a role such as "admin".
func (um *UserMapper) RoleByName(ctx context.Context, name string) (*Role, error) {
	r, err := mapper.Get[Role](ctx, um.m.Store(), "SELECT * FROM roles WHERE name = ?", strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// EmailTaken reports whether another user already uses email.
func (um *UserMapper) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	n, err := mapper.Count(ctx, um.m.Store(), "SELECT COUNT(1) FROM users WHERE LOWER(email) = LOWER(?) AND id <> ?", strings.TrimSpace(email), excludeID)
	return n > 0, err
}

// Save inserts or updates u. Unset fields, such as an empty PasswordHash,
// keep their stored values on update.
func (um *UserMapper) Save(ctx context.Context, u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.UpdatedAt = um.m.Now()
	return um.m.Save(ctx, u, false)
}

// SetPassword replaces the password hash of one user.
func (um *UserMapper) SetPassword(ctx context.Context, id int64, plain string) error {
	hash, err := HashPassword(plain)
	if err != nil {
		return err
	}
	return mapper.ExecAll(ctx, um.m.Store(), "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", []any{hash, um.m.Now(), id}, 1)
}

// Authenticate checks credentials and stamps last_login_at on success.
func (um *UserMapper) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := um.ByEmail(ctx, email)
	if errors.Is(err, mapper.ErrNotFound) {
		CheckPassword(string(dummyHash), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.Status {
		return nil, ErrInactiveUser
	}
	now := um.m.Now()
	if _, err := um.m.Store().Exec(ctx, "UPDATE users SET last_login_at = ? WHERE id = ?", now, u.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	u.LastLoginAt = &now
	return u, nil
}

func refuseSelf(actorID int64, ids []int64) error {
	if slices.Contains(ids, actorID) {
		return ErrSelfAction
	}
	return nil
}

// ToggleStatus flips a user's status; actors cannot deactivate themselves.
func (um *UserMapper) ToggleStatus(ctx context.Context, actorID, id int64) (bool, error) {
	if err := refuseSelf(actorID, []int64{id}); err != nil {
		return false, err
	}
	return um.m.ToggleStatus(ctx, TableUsers, id)
}

// Activate marks every id active.
func (um *UserMapper) Activate(ctx context.Context, ids []int64) error {
	return um.m.SetStatus(ctx, TableUsers, ids, true)
}

// Deactivate marks every id inactive, refusing the acting user.
func (um *UserMapper) Deactivate(ctx context.Context, actorID int64, ids []int64) error {
	if err := refuseSelf(actorID, ids); err != nil {
		return err
	}
	return um.m.SetStatus(ctx, TableUsers, ids, false)
}

// Destroy deletes one user other than the actor. Their sessions cascade and
// their posts lose the author reference.
func (um *UserMapper) Destroy(ctx context.Context, actorID, id int64) error {
	if err := refuseSelf(actorID, []int64{id}); err != nil {
		return err
	}
	return um.m.Destroy(ctx, &User{ID: id})
}

// DeleteMany deletes every id or none, refusing the acting user.
func (um *UserMapper) DeleteMany(ctx context.Context, actorID int64, ids []int64) error {
	if err := refuseSelf(actorID, ids); err != nil {
		return err
	}
	return um.m.DeleteMany(ctx, TableUsers, ids)
}

// CountAdmins returns the number of active users holding edit_other_users.
func (um *UserMapper) CountAdmins(ctx context.Context) (int64, error) {
	return mapper.Count(ctx, um.m.Store(), `
        SELECT COUNT(DISTINCT u.id) FROM users u
        JOIN role_privileges rp ON rp.role_id = u.role_id
        JOIN privileges p ON p.id = rp.privilege_id
        WHERE p.name = ? AND u.status = ?`, PrivEditOtherUsers, true)
}

// Create hashes plain and inserts a new active user with the named role.
func (um *UserMapper) Create(ctx context.Context, name, email, roleName, plain string) (*User, error) {
	role, err := um.RoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, mapper.ErrNotFound) {
			return nil, fmt.Errorf("unknown role %q", roleName)
		}
		return nil, err
	}
	hash, err := HashPassword(plain)
	if err != nil {
		return nil, err
	}
	u := &User{RoleID: role.ID, Name: strings.TrimSpace(name), Email: email, PasswordHash: hash, Status: true}
	if err := um.Save(ctx, u); err != nil {
		return nil, err
	}
	return um.Find(ctx, u.ID)
}
