package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lsm/internal/auth"
	"lsm/internal/mapper"
	"lsm/internal/validate"
)

// UsersController manages accounts. Users may always edit their own
// profile; everything else needs edit_other_users.
type UsersController struct {
	*Controller
}

type userList struct {
	Items          []auth.User
	Pagination     mapper.Pagination
	Search         string
	Query          string
	EditOtherUsers bool
}

type userForm struct {
	Account   *auth.User
	Roles     []auth.Role
	CanManage bool
	Self      bool
}

// Index lists users, filtered by a name or email fragment.
func (c *UsersController) Index(w http.ResponseWriter, r *http.Request, _ ...string) error {
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	p := mapper.NewPagination(pageNumber(r), c.app.cfg.Server.PerPage)
	items, p, err := c.app.users.Index(r.Context(), p, search)
	if err != nil {
		return err
	}
	data := userList{
		Items:          items,
		Pagination:     p,
		Search:         search,
		Query:          url.Values{"search": {search}}.Encode(),
		EditOtherUsers: c.User(r).HasPrivilege(auth.PrivEditOtherUsers),
	}
	return c.Render(w, "users/index", c.NewPage(r, "Users", "users", data))
}

// Create shows the empty form.
func (c *UsersController) Create(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditOtherUsers); err != nil {
		return err
	}
	return c.renderForm(w, r, "New user", &auth.User{Status: true})
}

// Edit shows the form for the user's own account or, with
// edit_other_users, anyone's.
func (c *UsersController) Edit(w http.ResponseWriter, r *http.Request, args ...string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if !c.User(r).CanEdit(id) {
		return fmt.Errorf("edit user %d: %w", id, auth.ErrPermissionDenied)
	}
	account, err := c.app.users.Find(r.Context(), id)
	if err != nil {
		return err
	}
	return c.renderForm(w, r, "Edit user", account)
}

func (c *UsersController) renderForm(w http.ResponseWriter, r *http.Request, title string, account *auth.User) error {
	roles, err := c.app.users.Roles(r.Context())
	if err != nil {
		return err
	}
	me := c.User(r)
	data := userForm{
		Account:   account,
		Roles:     roles,
		CanManage: me.HasPrivilege(auth.PrivEditOtherUsers) && me.ID != account.ID,
		Self:      me.ID == account.ID,
	}
	return c.Render(w, "users/form", c.NewPage(r, title, "users", data))
}

// Insert validates and stores a new account.
func (c *UsersController) Insert(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditOtherUsers); err != nil {
		return err
	}
	return c.save(w, r, 0)
}

// Update validates and stores changes; the id comes from the form.
func (c *UsersController) Update(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	if !c.User(r).CanEdit(id) {
		return fmt.Errorf("update user %d: %w", id, auth.ErrPermissionDenied)
	}
	return c.save(w, r, id)
}

func (c *UsersController) save(w http.ResponseWriter, r *http.Request, id int64) error {
	form, err := c.PostForm(r)
	if err != nil {
		return err
	}
	back := "users/create"
	rules := auth.UserCreateRules
	if id != 0 {
		back = fmt.Sprintf("users/%d/edit", id)
		rules = auth.UserUpdateRules
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed. Try again.", back)
	}

	ctx := r.Context()
	me := c.User(r)
	manage := me.HasPrivilege(auth.PrivEditOtherUsers) && me.ID != id

	account := &auth.User{Status: true}
	if id != 0 {
		if account, err = c.app.users.Find(ctx, id); err != nil {
			return err
		}
	}

	v := validate.New()
	v.Check(form, rules)
	if id != 0 && form.Get("password") != "" && form.Get("password_confirm") == "" {
		v.Add("password_confirm", "Password confirm must match Password")
	}
	email := strings.TrimSpace(form.Get("email"))
	if email != "" {
		taken, err := c.app.users.EmailTaken(ctx, email, id)
		if err != nil {
			return err
		}
		if taken {
			v.Add("email", "Email is already in use")
		}
	}
	var roleID int64
	if manage {
		roleID, _ = strconv.ParseInt(form.Get("role_id"), 10, 64)
		if id != 0 && roleID == 0 {
			roleID = account.RoleID
		}
		ok, err := c.roleExists(r, roleID)
		if err != nil {
			return err
		}
		if !ok {
			v.Add("role_id", "Role does not exist")
		}
	}
	if !v.Valid() {
		return c.Invalid(w, r, v, back)
	}

	account.Name = strings.TrimSpace(form.Get("name"))
	account.Email = email
	account.PasswordHash = ""
	if manage {
		account.RoleID = roleID
		account.Status = formBool(r, "status")
	}
	if plain := form.Get("password"); plain != "" {
		hash, err := auth.HashPassword(plain)
		if err != nil {
			return err
		}
		account.PasswordHash = hash
	}
	if err := c.app.users.Save(ctx, account); err != nil {
		return err
	}

	dest := "users/"
	if !me.HasPrivilege(auth.PrivEditOtherUsers) {
		dest = fmt.Sprintf("users/%d/edit", account.ID)
	}
	if id == 0 {
		return c.Success(w, r, "User created.", dest)
	}
	return c.Success(w, r, "User updated.", dest)
}

func (c *UsersController) roleExists(r *http.Request, id int64) (bool, error) {
	roles, err := c.app.users.Roles(r.Context())
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Delete asks for confirmation.
func (c *UsersController) Delete(w http.ResponseWriter, r *http.Request, args ...string) error {
	if err := c.Require(r, auth.PrivEditOtherUsers); err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	account, err := c.app.users.Find(r.Context(), id)
	if err != nil {
		return err
	}
	return c.Render(w, "users/delete", c.NewPage(r, "Delete user", "users", account))
}

// Destroy deletes an account other than the current user's.
func (c *UsersController) Destroy(w http.ResponseWriter, r *http.Request, _ ...string) error {
	if err := c.Require(r, auth.PrivEditOtherUsers); err != nil {
		return err
	}
	if _, err := c.PostForm(r); err != nil {
		return err
	}
	if err := c.CheckToken(r); err != nil {
		return c.Fail(w, r, "The request could not be processed.", "users/")
	}
	id, err := parseID(r.PostFormValue("id"))
	if err != nil {
		return err
	}
	err = c.app.users.Destroy(r.Context(), c.User(r).ID, id)
	switch {
	case errors.Is(err, auth.ErrSelfAction):
		return c.Fail(w, r, "You cannot delete your own account.", "users/")
	case errors.Is(err, mapper.ErrNotFound):
		return c.Fail(w, r, "The user no longer exists.", "users/")
	case err != nil:
		return err
	}
	return c.Success(w, r, "User deleted.", "users/")
}

// ToggleStatus activates or deactivates one account.
func (c *UsersController) ToggleStatus(w http.ResponseWriter, r *http.Request, args ...string) error {
	return c.Ajax(w, r, auth.PrivEditOtherUsers, "Could not change the status.", func() (Reply, error) {
		id, err := parseID(args[0])
		if err != nil {
			return Reply{}, err
		}
		status, err := c.app.users.ToggleStatus(r.Context(), c.User(r).ID, id)
		if err != nil {
			return Reply{}, selfError(err)
		}
		return Reply{Items: []int64{id}, Status: &status}, nil
	})
}

// Activate enables the selected accounts.
func (c *UsersController) Activate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditOtherUsers, "Could not change the status.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Items: ids, Success: "Users activated."}, c.app.users.Activate(r.Context(), ids)
	})
}

// Deactivate disables the selected accounts, never the current user's.
func (c *UsersController) Deactivate(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditOtherUsers, "Could not change the status.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: "Users deactivated."}
		return reply, selfError(c.app.users.Deactivate(r.Context(), c.User(r).ID, ids))
	})
}

// DeleteAjax deletes the selected accounts, never the current user's.
func (c *UsersController) DeleteAjax(w http.ResponseWriter, r *http.Request, _ ...string) error {
	return c.Ajax(w, r, auth.PrivEditOtherUsers, "Could not delete the users.", func() (Reply, error) {
		ids, err := formIDs(r)
		if err != nil {
			return Reply{}, err
		}
		reply := Reply{Items: ids, Success: "Users deleted."}
		if err := c.app.users.DeleteMany(r.Context(), c.User(r).ID, ids); err != nil {
			return reply, selfError(err)
		}
		c.Session(r).Flash(flashSuccess, reply.Success)
		return reply, nil
	})
}

func selfError(err error) error {
	if errors.Is(err, auth.ErrSelfAction) {
		return shown("You cannot delete or deactivate your own account.", err)
	}
	return err
}
