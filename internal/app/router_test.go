package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/auth"
	"github.com/odyssey-erp/accountkit/internal/forms"
	accountmw "github.com/odyssey-erp/accountkit/internal/middleware"
	"github.com/odyssey-erp/accountkit/internal/shared"
	"github.com/odyssey-erp/accountkit/internal/view"
	_ "github.com/odyssey-erp/accountkit/testing"
)

type fakeAccounts struct {
	account *accounts.Account
}

func (f *fakeAccounts) Authenticate(_ context.Context, identifier, password string) (*accounts.Account, error) {
	if f.account != nil && identifier == f.account.Username && password == "pw" {
		return f.account, nil
	}
	return nil, shared.ErrInvalidCredentials
}

func (f *fakeAccounts) ConfirmByActivationKey(context.Context, string) (*accounts.EmailAssociation, error) {
	return nil, nil
}

func (f *fakeAccounts) CurrentAccount(_ context.Context, userID string) (*accounts.Account, error) {
	if f.account != nil && userID == "1" {
		return f.account, nil
	}
	return nil, nil
}

func (f *fakeAccounts) AccountTimezone(context.Context, string) (string, error) {
	return "Asia/Jakarta", nil
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func newTestRouter(t *testing.T, cfg *Config, hosts *accountmw.AllowedHosts) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	accts := &fakeAccounts{account: &accounts.Account{ID: 1, Username: "alice", Email: "alice@example.org", IsActive: true}}
	authHandler := auth.NewHandler(nil, auth.NewService(accts, nil, nil), templates, sessions, csrf, forms.Styler{DefaultInputClass: "form-control"})

	return NewRouter(RouterParams{
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessions,
		CSRFManager:     csrf,
		AllowedHosts:    hosts,
		Timezones:       accts,
		Accounts:        accts,
		AuthHandler:     authHandler,
		AccountsHandler: accounts.NewHandler(nil, nil),
	})
}

func serve(h http.Handler, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loginForm(token string) *http.Request {
	values := url.Values{"identifier": {"alice"}, "password": {"pw"}}
	if token != "" {
		values.Set("csrf_token", token)
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &Config{}, nil)
	res := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"ok"`) {
		t.Fatalf("unexpected healthz response %d %s", res.Code, res.Body.String())
	}
	if res.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected secure headers on responses")
	}
}

func TestHomeRedirectsAnonymous(t *testing.T) {
	router := newTestRouter(t, &Config{}, nil)
	res := serve(router, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/auth/login" {
		t.Fatalf("expected redirect to login, got %d %q", res.Code, res.Header().Get("Location"))
	}
}

func TestLoginFlowRequiresCSRF(t *testing.T) {
	router := newTestRouter(t, &Config{LoginRateLimit: 100}, nil)

	page := serve(router, httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil)
	if page.Code != http.StatusOK {
		t.Fatalf("expected login page, got %d", page.Code)
	}
	cookies := page.Result().Cookies()
	match := csrfPattern.FindStringSubmatch(page.Body.String())
	if len(cookies) == 0 || match == nil {
		t.Fatalf("expected session cookie and csrf token")
	}

	res := serve(router, loginForm(""), cookies)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", res.Code)
	}

	res = serve(router, loginForm(match[1]), cookies)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect after login, got %d %q", res.Code, res.Header().Get("Location"))
	}

	home := serve(router, httptest.NewRequest(http.MethodGet, "/", nil), cookies)
	if home.Code != http.StatusOK || !strings.Contains(home.Body.String(), "Welcome, alice") {
		t.Fatalf("expected home page for logged-in user, got %d", home.Code)
	}
	if !strings.Contains(home.Body.String(), "Welcome back") {
		t.Fatalf("expected login flash on home page")
	}
}

func TestAPILoginSkipsCSRFForJSON(t *testing.T) {
	router := newTestRouter(t, &Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/api/login", strings.NewReader(`{"identifier":"alice","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(router, req, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/api/login", strings.NewReader(`identifier=alice`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res = serve(router, req, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected form posts to the api to need csrf, got %d", res.Code)
	}
}

func TestAccountsRequireSession(t *testing.T) {
	router := newTestRouter(t, &Config{}, nil)
	res := serve(router, httptest.NewRequest(http.MethodGet, "/accounts/batch?ids=1", nil), nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginThrottle(t *testing.T) {
	router := newTestRouter(t, &Config{LoginRateLimit: 2}, nil)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/api/login", strings.NewReader(`{"identifier":"alice","password":"bad"}`))
		req.Header.Set("Content-Type", "application/json")
		last = serve(router, req, nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt throttled, got %d", last)
	}

	// Viewing the form is never throttled.
	if res := serve(router, httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil); res.Code != http.StatusOK {
		t.Fatalf("expected login page, got %d", res.Code)
	}
}

func TestDisallowedHostRedirects(t *testing.T) {
	hosts, err := accountmw.NewAllowedHosts(accountmw.AllowedHostsConfig{
		Patterns:      []string{`accounts\.example\.org`},
		DefaultDomain: "accounts.example.org",
	})
	if err != nil {
		t.Fatalf("allowed hosts: %v", err)
	}
	router := newTestRouter(t, &Config{}, hosts)

	req := httptest.NewRequest(http.MethodGet, "http://evil.example/healthz", nil)
	res := serve(router, req, nil)
	if res.Code != http.StatusFound || res.Header().Get("Location") != "http://accounts.example.org/healthz" {
		t.Fatalf("expected redirect to default domain, got %d %q", res.Code, res.Header().Get("Location"))
	}
}

func TestStaticAssets(t *testing.T) {
	router := newTestRouter(t, &Config{}, nil)
	res := serve(router, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected stylesheet, got %d", res.Code)
	}
	if !strings.HasPrefix(res.Header().Get("Content-Type"), "text/css") {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if res.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected cache headers")
	}
}

func TestCSRFExempt(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/api/login", nil)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if !csrfExempt(req) {
		t.Fatalf("expected json api request to be exempt")
	}
	req = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("Content-Type", "application/json")
	if csrfExempt(req) {
		t.Fatalf("html routes are never exempt")
	}
}
