package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsm/internal/content"
	"lsm/internal/testsupport"
)

func TestAnonymousVisitorsAreSentToLogin(t *testing.T) {
	h := newHarness(t)

	res, _ := h.get("posts/")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/session/login?next=%2Fposts%2F", res.Header.Get("Location"))

	status, reply := h.ajax("series/delete-ajax", url.Values{"items": {"1"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, reply.IsOk)
	assert.Equal(t, "Your session has expired. Log in again.", reply.Error)
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")

	res, body := h.get("session/login?next=/categories/")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `name="next" value="/categories/"`)

	res, _ = h.post("session/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong password"},
		"next":     {"/categories/"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/session/login?next=%2Fcategories%2F", res.Header.Get("Location"))

	_, body = h.get("session/login?next=/categories/")
	assert.Contains(t, body, "Invalid email or password.")
	assert.Contains(t, body, `value="ada@example.com"`)

	res, _ = h.post("session/login", url.Values{
		"email":    {"ADA@example.com"},
		"password": {password},
		"next":     {"/categories/"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/categories/", res.Header.Get("Location"))

	res, body = h.get("")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "Dashboard")
	assert.Contains(t, body, "Ada")

	res, _ = h.post("session/logout", nil)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	res, _ = h.get("")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
}

func TestLoginRejectsForeignNext(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.get("session/login")

	res, _ := h.post("session/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {password},
		"next":     {"//evil.example/steal"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))
}

func TestLoginRequiresToken(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.get("session/login")

	res, _ := h.post("session/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {password},
		"token":    {"stale"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Contains(t, res.Header.Get("Location"), "/session/login")

	res, _ = h.get("")
	assert.Equal(t, http.StatusSeeOther, res.StatusCode, "stale token must not log in")
}

func TestAuthorCannotManageCategories(t *testing.T) {
	h := newHarness(t)
	h.createUser("Bob", "bob@example.com", "author")
	h.login("bob@example.com")

	res, body := h.get("categories/create")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, body, "Permission denied.")

	status, reply := h.ajax("categories/delete-ajax", url.Values{"items": {"1"}})
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, reply.IsOk)
	assert.Equal(t, "Permission denied.", reply.Error)
}

func TestCategoryValidationRoundTrip(t *testing.T) {
	h := newHarness(t, testsupport.WithBasePath("/admin"))
	h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	res, _ := h.post("categories/insert", url.Values{"name": {""}, "description": {"kept text"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/admin/categories/create", res.Header.Get("Location"))

	_, body := h.get("categories/create")
	assert.Contains(t, body, "Name is required")
	assert.Contains(t, body, "kept text")

	res, _ = h.post("categories/insert", url.Values{"name": {"Travel Notes"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/admin/categories/", res.Header.Get("Location"))

	_, body = h.get("categories/")
	assert.Contains(t, body, "Category created.")
	assert.Contains(t, body, "Travel Notes")
	assert.Contains(t, body, "travel-notes")

	res, _ = h.post("categories/insert", url.Values{"name": {"travel notes"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	_, body = h.get("categories/create")
	assert.Contains(t, body, "Name is already in use")
}

func TestCategoryWithPostsCannotBeDeleted(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	cat := h.createCategory("News")
	empty := h.createCategory("Empty")
	h.createPost(cat.ID, "Hello")
	h.login("ada@example.com")

	id := strconv.FormatInt(cat.ID, 10)
	res, _ := h.post("categories/destroy", url.Values{"id": {id}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	_, body := h.get("categories/")
	assert.Contains(t, body, "The category has posts and cannot be deleted.")

	status, reply := h.ajax("categories/delete-ajax", url.Values{"items[]": {id}})
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, reply.IsOk)
	assert.Equal(t, "Categories with posts cannot be deleted.", reply.Error)

	_, reply = h.ajax("categories/delete-ajax", url.Values{"items[]": {strconv.FormatInt(empty.ID, 10)}})
	assert.True(t, reply.IsOk, reply.Error)
	_, err := content.NewCategoryMapper(h.m).Find(context.Background(), empty.ID)
	assert.Error(t, err)
}

func TestAjaxRejectsStaleToken(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	_, reply := h.ajax("series/activate", url.Values{"items": {"1"}, "token": {"stale"}})
	assert.False(t, reply.IsOk)
	assert.Equal(t, "The request could not be processed.", reply.Error)
	assert.NotEmpty(t, reply.Token, "a failed reply still hands out a token")

	_, reply = h.ajax("series/activate", nil)
	assert.False(t, reply.IsOk)
	assert.Equal(t, "Select at least one item.", reply.Error)
}

func TestSeriesToggleAndBulkStatus(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	res, _ := h.post("series/insert", url.Values{"title": {"Summer Trip"}, "status": {"1"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	series := content.NewSeriesMapper(h.m)
	active, err := series.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	id := active[0].ID

	_, reply := h.ajax("series/"+strconv.FormatInt(id, 10)+"/toggle-status", nil)
	require.True(t, reply.IsOk, reply.Error)
	require.NotNil(t, reply.Status)
	assert.False(t, *reply.Status)
	assert.Equal(t, []int64{id}, reply.Items)

	_, reply = h.ajax("series/activate", url.Values{"items": {strconv.FormatInt(id, 10)}})
	require.True(t, reply.IsOk, reply.Error)
	s, err := series.Find(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, s.Status)

	_, reply = h.ajax("series/deactivate", url.Values{"items": {"999"}})
	assert.False(t, reply.IsOk)
	assert.Contains(t, reply.Error, "Some items no longer exist.")
}

func TestPostEditKeepsAuthor(t *testing.T) {
	h := newHarness(t)
	author := h.createUser("Bob", "bob@example.com", "author")
	h.createUser("Ada", "ada@example.com", "admin")
	cat := h.createCategory("News")

	h.login("bob@example.com")
	res, _ := h.post("posts/insert", url.Values{
		"title":       {"First Post"},
		"category_id": {strconv.FormatInt(cat.ID, 10)},
		"body":        {"Some *markdown*"},
		"status":      {"0"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	posts := content.NewPostMapper(h.m)
	p, err := posts.BySlug(context.Background(), "first-post")
	require.NoError(t, err)
	require.NotNil(t, p.AuthorID)
	assert.Equal(t, author.ID, *p.AuthorID)
	assert.False(t, p.Status)

	h.post("session/logout", nil)
	h.login("ada@example.com")
	res, _ = h.post("posts/update", url.Values{
		"id":          {strconv.FormatInt(p.ID, 10)},
		"title":       {"First Post, edited"},
		"category_id": {strconv.FormatInt(cat.ID, 10)},
		"status":      {"1"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	p, err = posts.Find(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, p.AuthorID)
	assert.Equal(t, author.ID, *p.AuthorID)
	assert.Equal(t, "First Post, edited", p.Title)

	_, body := h.get("posts/" + strconv.FormatInt(p.ID, 10))
	assert.Contains(t, body, "Bob")
}

func TestPostRejectsUnknownCategory(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	res, _ := h.post("posts/insert", url.Values{"title": {"Orphan"}, "category_id": {"42"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/posts/create", res.Header.Get("Location"))

	_, body := h.get("posts/create")
	assert.Contains(t, body, "Category does not exist")
}

func TestImageUploadAndReorder(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	post := h.createPost(h.createCategory("News").ID, "Gallery")
	h.login("ada@example.com")

	gallery := "posts/" + strconv.FormatInt(post.ID, 10) + "/images"
	res, _ := h.upload(gallery+"/upload", "", map[string][]byte{"one.png": testsupport.PNG(t, 2, 2)})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	res, _ = h.upload(gallery+"/upload", "second", map[string][]byte{
		"two.png":   testsupport.PNG(t, 3, 3),
		"notes.txt": []byte("hello"),
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	_, body := h.get(gallery)
	assert.Contains(t, body, "1 image(s) uploaded.")
	assert.Contains(t, body, "notes.txt")

	images := content.NewImageMapper(h.m)
	list, err := images.Index(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.FileExists(t, h.uploads.Path(post.ID, list[0].ID, list[0].Extension))
	assert.Equal(t, "second", list[1].Caption)

	moved := list[1]
	_, reply := h.ajax(gallery+"/"+strconv.FormatInt(moved.ID, 10)+"/position", url.Values{"old": {"2"}, "new": {"1"}})
	require.True(t, reply.IsOk, reply.Error)
	assert.Equal(t, []int64{moved.ID, list[0].ID}, reply.Items)

	_, reply = h.ajax(gallery+"/"+strconv.FormatInt(moved.ID, 10)+"/position", url.Values{"old": {"2"}, "new": {"1"}})
	assert.False(t, reply.IsOk)
	assert.Equal(t, "Invalid position. Reload the gallery and try again.", reply.Error)

	res, _ = h.post(gallery+"/"+strconv.FormatInt(moved.ID, 10)+"/destroy", nil)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.NoFileExists(t, h.uploads.Path(post.ID, moved.ID, moved.Extension))
	list, err = images.Index(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Position)
}

func TestUserSelfServiceLimits(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("Ada", "ada@example.com", "admin")
	author := h.createUser("Bob", "bob@example.com", "author")
	h.login("bob@example.com")

	res, _ := h.get("users/" + strconv.FormatInt(admin.ID, 10) + "/edit")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	adminRole, err := h.users.RoleByName(context.Background(), "admin")
	require.NoError(t, err)
	res, _ = h.post("users/update", url.Values{
		"id":      {strconv.FormatInt(author.ID, 10)},
		"name":    {"Bobby"},
		"email":   {"bob@example.com"},
		"role_id": {strconv.FormatInt(adminRole.ID, 10)},
		"status":  {"0"},
	})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	u, err := h.users.Find(context.Background(), author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", u.Name)
	assert.Equal(t, "author", u.RoleName, "role is not self-service")
	assert.True(t, u.Status)
}

func TestAdminCannotRemoveOwnAccount(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("Ada", "ada@example.com", "admin")
	other := h.createUser("Bob", "bob@example.com", "author")
	h.login("ada@example.com")

	_, reply := h.ajax("users/delete-ajax", url.Values{"items": {strconv.FormatInt(admin.ID, 10)}})
	assert.False(t, reply.IsOk)
	assert.Equal(t, "You cannot delete or deactivate your own account.", reply.Error)
	assert.Empty(t, reply.Success)

	_, reply = h.ajax("users/deactivate", url.Values{"items": {strconv.FormatInt(other.ID, 10)}})
	require.True(t, reply.IsOk, reply.Error)
	u, err := h.users.Find(context.Background(), other.ID)
	require.NoError(t, err)
	assert.False(t, u.Status)
}

func TestAjaxRepliesCarryEveryKey(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	_, body := h.ajaxRaw("users/deactivate", url.Values{"items": {strconv.FormatInt(admin.ID, 10)}})
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw), body)
	for _, key := range []string{"isOk", "token", "error", "success", "items"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, false, raw["isOk"])
	assert.Equal(t, "", raw["success"])
	assert.NotEmpty(t, raw["token"])
}

func TestUnknownPagesAndMethods(t *testing.T) {
	h := newHarness(t)
	h.createUser("Ada", "ada@example.com", "admin")
	h.login("ada@example.com")

	res, body := h.get("nowhere")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, body, "Page not found.")

	res, _ = h.get("categories/999/edit")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = h.get("categories/insert")
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	assert.Equal(t, "POST", res.Header.Get("Allow"))
}
