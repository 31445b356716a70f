package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
	_ "github.com/salesdesk/salesdesk/testing"
)

type noRecords struct{}

func (noRecords) FindByIdentity(ctx context.Context, identityID string) (authz.Record, bool, error) {
	return authz.Record{}, false, nil
}

type dashboardStub struct{ stats DashboardStats }

func (d dashboardStub) Stats(ctx context.Context, st authz.State) (DashboardStats, error) {
	return d.stats, nil
}

type routerFixture struct {
	handler  http.Handler
	sessions *shared.SessionManager
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := newLogger(&Config{LogLevel: "error"}, &strings.Builder{})

	guard := authz.Guard{
		Identity:    authz.SessionIdentity,
		LoginPath:   "/auth/login",
		LandingPath: "/",
		Loading:     LoadingPage(templates, logger),
	}
	handler := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		Templates:      templates,
		SessionManager: sessions,
		CSRFManager:    shared.NewCSRFManager("secret"),
		Metrics:        observability.NewMetrics(),
		Resolver:       authz.Resolver{Registry: authz.NewRegistry(noRecords{}, nil, nil), SettleWait: time.Second},
		Guard:          guard,
		Dashboard:      dashboardStub{stats: DashboardStats{ClientCount: 7}},
	})
	return routerFixture{handler: handler, sessions: sessions}
}

// loggedIn stores a session for identity and returns its cookie.
func (f routerFixture) loggedIn(t *testing.T, identity string) *http.Cookie {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(identity)
	rr := httptest.NewRecorder()
	require.NoError(t, f.sessions.Commit(context.Background(), rr, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (f routerFixture) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthz(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.get("/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouterAnonymousLandingGoesToLogin(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.get("/", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestRouterUnknownPathRedirectsToLanding(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.get("/no/such/page", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestRouterDashboardForIdentityWithoutRecord(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.get("/", f.loggedIn(t, "user-1"))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Dashboard")
	// No record: every capability denied, so neither counter nor nav link shows.
	assert.NotContains(t, body, `href="/clients"`)
	assert.NotContains(t, body, "Manage user permissions")
}

func TestRouterAuthorizationAPI(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.get("/api/me/authorization", nil).Code)

	rr := f.get("/api/me/authorization", f.loggedIn(t, "user-1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"identity_id":"user-1"`)
}

func TestRouterStaticAssets(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.get("/static/css/app.css", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/css")

	rr = f.get("/static/css/", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterMetrics(t *testing.T) {
	f := newRouterFixture(t)
	f.get("/healthz", nil)
	rr := f.get("/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `salesdesk_http_requests_total{code="200",route="/healthz"}`)
}

func TestRouterRejectsPostWithoutCSRFToken(t *testing.T) {
	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(f.loggedIn(t, "user-1"))
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
