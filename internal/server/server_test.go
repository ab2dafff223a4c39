package server_test

import (
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog/internal/auth"
	"github.com/sakif/blog/internal/config"
	sqliteRepo "github.com/sakif/blog/internal/repository/sqlite"
	"github.com/sakif/blog/internal/server"
)

// =========================================================================
// HELPERS
// =========================================================================

// newTestServer starts the full application on an in-memory database.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.DBPath = sqliteRepo.MemoryPath
	cfg.SecretKey = "test-secret-at-least-16-chars"
	cfg.BcryptCost = 4
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv, err := server.New(cfg, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

// newBrowser returns a client with its own cookie jar that does not follow
// redirects, so tests can assert on each 302.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// readBody drains the response and returns the body with HTML entities
// decoded, so assertions can use plain text ("doesn't", not "doesn&#39;t").
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return html.UnescapeString(string(b))
}

func get(t *testing.T, c *http.Client, ts *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(ts.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func post(t *testing.T, c *http.Client, ts *httptest.Server, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(ts.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func credentials(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

func postForm(title, body string) url.Values {
	return url.Values{"title": {title}, "body": {body}}
}

// registerAndLogin creates an account and logs the browser in.
func registerAndLogin(t *testing.T, c *http.Client, ts *httptest.Server, username string) {
	t.Helper()
	resp, _ := post(t, c, ts, "/auth/register", credentials(username, "pw-"+username))
	assertRedirect(t, resp, auth.LoginPath)
	resp, _ = post(t, c, ts, "/auth/login", credentials(username, "pw-"+username))
	assertRedirect(t, resp, "/")
}

var editLink = regexp.MustCompile(`href="/(\d+)/update"`)

// ownPostIDs returns the ids of the posts the browser's user can edit, in
// feed order.
func ownPostIDs(t *testing.T, c *http.Client, ts *httptest.Server) []string {
	t.Helper()
	_, body := get(t, c, ts, "/")
	var ids []string
	for _, m := range editLink.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func createPost(t *testing.T, c *http.Client, ts *httptest.Server, title, body string) string {
	t.Helper()
	resp, _ := post(t, c, ts, "/create", postForm(title, body))
	assertRedirect(t, resp, "/")
	ids := ownPostIDs(t, c, ts)
	require.NotEmpty(t, ids)
	return ids[0]
}

// =========================================================================
// BASIC ROUTES
// =========================================================================

func TestHello(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, newBrowser(t), ts, "/hello")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, World!", body)
}

func TestIndex_Anonymous(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, newBrowser(t), ts, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Log In")
	assert.Contains(t, body, "Register")
	assert.NotContains(t, body, `href="/create"`)
}

func TestStaticAssets(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, newBrowser(t), ts, "/static/style.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ".flash")
}

func TestUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	resp, _ := get(t, c, ts, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// {id} only matches digits.
	resp, _ = get(t, c, ts, "/abc/update")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, c, ts, "/1/delete")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// =========================================================================
// REGISTRATION
// =========================================================================

func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	resp, body := post(t, c, ts, "/auth/register", credentials("", "pw"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Username is required.")

	resp, body = post(t, c, ts, "/auth/register", credentials("alice", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Password is required.")

	// A missing field behaves like an empty one.
	resp, body = post(t, c, ts, "/auth/register", url.Values{"password": {"pw"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Username is required.")

	// Nothing was stored: logging in as alice fails on the username.
	_, body = post(t, c, ts, "/auth/login", credentials("alice", "pw"))
	assert.Contains(t, body, "Incorrect username.")
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	resp, _ := post(t, c, ts, "/auth/register", credentials("alice", "pw"))
	assertRedirect(t, resp, "/auth/login")

	resp, body := post(t, c, ts, "/auth/register", credentials("alice", "other"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "User alice is already registered.")

	// The original password still works, so the first row is untouched.
	resp, _ = post(t, c, ts, "/auth/login", credentials("alice", "pw"))
	assertRedirect(t, resp, "/")
}

func TestRegister_DoesNotLogIn(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	post(t, c, ts, "/auth/register", credentials("alice", "pw"))

	resp, _ := get(t, c, ts, "/create")
	assertRedirect(t, resp, "/auth/login")
}

func TestFlash_ShownOnce(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	_, body := post(t, c, ts, "/auth/register", credentials("", ""))
	assert.Contains(t, body, "Username is required.")

	_, body = get(t, c, ts, "/auth/register")
	assert.NotContains(t, body, "Username is required.")
}

// =========================================================================
// LOGIN / LOGOUT
// =========================================================================

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	post(t, c, ts, "/auth/register", credentials("alice", "secret"))

	_, body := post(t, c, ts, "/auth/login", credentials("bob", "secret"))
	assert.Contains(t, body, "Incorrect username.")

	_, body = post(t, c, ts, "/auth/login", credentials("alice", "wrong"))
	assert.Contains(t, body, "Incorrect password.")

	resp, _ := post(t, c, ts, "/auth/login", credentials("alice", "secret"))
	assertRedirect(t, resp, "/")

	var session *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == auth.SessionCookieName {
			session = ck
		}
	}
	require.NotNil(t, session, "login did not set the session cookie")
	assert.True(t, session.HttpOnly)

	_, body = get(t, c, ts, "/")
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "Log Out")
	assert.Contains(t, body, `href="/create"`)
}

func TestLogin_ReplacesPreviousIdentity(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	registerAndLogin(t, c, ts, "alice")

	post(t, c, ts, "/auth/register", credentials("bob", "pw-bob"))
	resp, _ := post(t, c, ts, "/auth/login", credentials("bob", "pw-bob"))
	assertRedirect(t, resp, "/")

	id := createPost(t, c, ts, "by bob", "")
	_, body := get(t, c, ts, "/"+id)
	assert.Contains(t, body, "by bob")
	assert.NotContains(t, body, "by alice")
}

func TestLogout_ThenCreateIsRedirected(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	registerAndLogin(t, c, ts, "alice")

	resp, _ := get(t, c, ts, "/auth/logout")
	assertRedirect(t, resp, "/")

	resp, _ = get(t, c, ts, "/create")
	assertRedirect(t, resp, "/auth/login")

	resp, _ = post(t, c, ts, "/create", postForm("sneaky", ""))
	assertRedirect(t, resp, "/auth/login")

	_, body := get(t, c, ts, "/")
	assert.NotContains(t, body, "sneaky")
}

func TestLogout_Idempotent(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	for range 2 {
		resp, _ := get(t, c, ts, "/auth/logout")
		assertRedirect(t, resp, "/")
	}
}

func TestTamperedSessionIsAnonymous(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: auth.SessionCookieName, Value: "eyJhbGciOiJIUzI1NiJ9.e30.bogus"}})

	resp, body := get(t, c, ts, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Log In")
}

// =========================================================================
// POSTS
// =========================================================================

func TestCreate(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	registerAndLogin(t, c, ts, "alice")

	resp, body := post(t, c, ts, "/create", postForm("", "body without a title"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Title is required.")
	assert.NotContains(t, body, "body without a title", "typed input must not be echoed back")
	assert.Empty(t, ownPostIDs(t, c, ts))

	createPost(t, c, ts, "Only a title", "")

	_, body = get(t, c, ts, "/")
	assert.Contains(t, body, "Only a title")
	assert.Contains(t, body, "by alice on")
}

func TestFeed_NewestFirst(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	registerAndLogin(t, c, ts, "alice")

	for _, title := range []string{"t1", "t2", "t3"} {
		createPost(t, c, ts, title, "")
	}

	_, body := get(t, c, ts, "/")
	i3 := strings.Index(body, ">t3<")
	i2 := strings.Index(body, ">t2<")
	i1 := strings.Index(body, ">t1<")
	require.True(t, i3 >= 0 && i2 >= 0 && i1 >= 0, "feed is missing posts: %s", body)
	assert.Less(t, i3, i2)
	assert.Less(t, i2, i1)
}

func TestUpdate_OnlyAuthor(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t)
	bob := newBrowser(t)
	registerAndLogin(t, alice, ts, "alice")
	registerAndLogin(t, bob, ts, "bob")

	id := createPost(t, alice, ts, "original", "text")

	// Bob sees it but has no edit link, and cannot edit it.
	_, body := get(t, bob, ts, "/")
	assert.Contains(t, body, "original")
	assert.Empty(t, ownPostIDs(t, bob, ts))

	resp, _ := get(t, bob, ts, "/"+id+"/update")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = post(t, bob, ts, "/"+id+"/update", postForm("hijacked", ""))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Alice can.
	resp, body = get(t, alice, ts, "/"+id+"/update")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="original"`)

	resp, _ = post(t, alice, ts, "/"+id+"/update", postForm("edited", "new text"))
	assertRedirect(t, resp, "/")

	_, body = get(t, bob, ts, "/")
	assert.Contains(t, body, "edited")
	assert.NotContains(t, body, "hijacked")
}

func TestUpdate_EmptyTitleKeepsStoredValues(t *testing.T) {
	ts := newTestServer(t)
	c := newBrowser(t)
	registerAndLogin(t, c, ts, "alice")
	id := createPost(t, c, ts, "stored title", "")

	resp, body := post(t, c, ts, "/"+id+"/update", postForm("", "typed body"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Title is required.")
	assert.Contains(t, body, `value="stored title"`)
	assert.NotContains(t, body, "typed body")
}

func TestMissingPost_NotFoundForEveryUser(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t)
	bob := newBrowser(t)
	registerAndLogin(t, alice, ts, "alice")
	registerAndLogin(t, bob, ts, "bob")
	createPost(t, alice, ts, "exists", "")

	for _, c := range []*http.Client{alice, bob} {
		resp, body := get(t, c, ts, "/999/update")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body, "Post id 999 doesn't exist.")

		resp, _ = post(t, c, ts, "/999/update", postForm("x", ""))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = post(t, c, ts, "/999/delete", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	// An id too large for int64 is still just a missing post.
	resp, _ := get(t, alice, ts, "/99999999999999999999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDetail_Public(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t)
	registerAndLogin(t, alice, ts, "alice")
	id := createPost(t, alice, ts, "readable", "by anyone")

	resp, body := get(t, newBrowser(t), ts, "/"+id)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "by anyone")
	assert.NotContains(t, body, "/"+id+"/update")
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t)
	alice := newBrowser(t)
	bob := newBrowser(t)
	registerAndLogin(t, alice, ts, "alice")
	registerAndLogin(t, bob, ts, "bob")
	id := createPost(t, alice, ts, "short-lived", "")

	resp, _ := post(t, bob, ts, "/"+id+"/delete", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = post(t, newBrowser(t), ts, "/"+id+"/delete", nil)
	assertRedirect(t, resp, "/auth/login")

	resp, _ = post(t, alice, ts, "/"+id+"/delete", nil)
	assertRedirect(t, resp, "/")

	_, body := get(t, alice, ts, "/")
	assert.NotContains(t, body, "short-lived")

	resp, body = get(t, alice, ts, "/"+id)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Post id "+id+" doesn't exist.")
}
