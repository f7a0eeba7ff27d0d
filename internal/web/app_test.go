package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lsm/internal/auth"
	"lsm/internal/config"
	"lsm/internal/content"
	"lsm/internal/logging"
	"lsm/internal/mapper"
	"lsm/internal/session"
	"lsm/internal/testsupport"
	"lsm/internal/uploads"
	"lsm/internal/web"
)

const password = "correct horse"

var tokenPattern = regexp.MustCompile(`data-token="([0-9a-f]+)"`)

// harness serves one App over httptest with a cookie-keeping client that
// does not follow redirects.
type harness struct {
	t       *testing.T
	cfg     *config.Config
	srv     *httptest.Server
	client  *http.Client
	token   string
	m       *mapper.Mapper
	users   *auth.UserMapper
	uploads *uploads.Store
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	m := mapper.New(st)
	logger := logging.NewNop()
	up := uploads.New(cfg, logger)
	require.NoError(t, up.Preflight())

	app, err := web.New(web.Deps{
		Config:   cfg,
		Logger:   logger,
		Mapper:   m,
		Sessions: session.NewManager(m, session.Options{TTL: cfg.SessionTTL(), Path: "/"}, logger),
		Uploads:  up,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		t:   t,
		cfg: cfg,
		srv: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		m:       m,
		users:   auth.NewUserMapper(m),
		uploads: up,
	}
}

func (h *harness) url(path string) string {
	return h.srv.URL + h.cfg.Server.BasePath + "/" + strings.TrimLeft(path, "/")
}

func (h *harness) local(path string) string {
	return h.cfg.Server.BasePath + "/" + strings.TrimLeft(path, "/")
}

func (h *harness) do(req *http.Request) (*http.Response, string) {
	h.t.Helper()
	res, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(h.t, err)
	if m := tokenPattern.FindSubmatch(body); m != nil {
		h.token = string(m[1])
	}
	return res, string(body)
}

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.url(path), nil)
	require.NoError(h.t, err)
	return h.do(req)
}

// post submits form with the current token unless form already has one.
func (h *harness) post(path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if !form.Has("token") {
		form.Set("token", h.token)
	}
	req, err := http.NewRequest(http.MethodPost, h.url(path), strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) ajax(path string, form url.Values) (int, web.Reply) {
	h.t.Helper()
	status, body := h.ajaxRaw(path, form)
	var reply web.Reply
	require.NoError(h.t, json.Unmarshal([]byte(body), &reply), body)
	if reply.Token != "" {
		h.token = reply.Token
	}
	return status, reply
}

// ajaxRaw posts form as an AJAX call and returns the undecoded body.
func (h *harness) ajaxRaw(path string, form url.Values) (int, string) {
	h.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	if !form.Has("token") {
		form.Set("token", h.token)
	}
	req, err := http.NewRequest(http.MethodPost, h.url(path), strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	res, body := h.do(req)
	return res.StatusCode, body
}

func (h *harness) upload(path, caption string, files map[string][]byte) (*http.Response, string) {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(h.t, mw.WriteField("token", h.token))
	require.NoError(h.t, mw.WriteField("caption", caption))
	for name, data := range files {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(h.t, err)
		_, err = fw.Write(data)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.url(path), &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(req)
}

func (h *harness) createUser(name, email, role string) *auth.User {
	h.t.Helper()
	u, err := h.users.Create(context.Background(), name, email, role, password)
	require.NoError(h.t, err)
	return u
}

// login signs in and loads the dashboard so the harness holds a fresh token.
func (h *harness) login(email string) {
	h.t.Helper()
	h.get("session/login")
	res, _ := h.post("session/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(h.t, http.StatusSeeOther, res.StatusCode)
	require.Equal(h.t, h.local(""), res.Header.Get("Location"))
	res, _ = h.get("")
	require.Equal(h.t, http.StatusOK, res.StatusCode)
}

func (h *harness) createCategory(name string) *content.Category {
	h.t.Helper()
	c := &content.Category{Name: name}
	require.NoError(h.t, content.NewCategoryMapper(h.m).Save(context.Background(), c))
	return c
}

func (h *harness) createPost(categoryID int64, title string) *content.Post {
	h.t.Helper()
	p := &content.Post{CategoryID: categoryID, Title: title, Status: true}
	require.NoError(h.t, content.NewPostMapper(h.m).Save(context.Background(), p))
	return p
}
