package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
	"github.com/salesdesk/salesdesk/internal/view"
	"github.com/salesdesk/salesdesk/jobs"
	_ "github.com/salesdesk/salesdesk/testing"
)

// memRecords is an in-memory authorization table serving both the admin
// writes and the store reads.
type memRecords struct {
	mu      sync.Mutex
	records map[string]authz.Record
	users   map[string][2]string
	fail    error
	writes  int
}

func newMemRecords() *memRecords {
	return &memRecords{records: map[string]authz.Record{}, users: map[string][2]string{}}
}

func (m *memRecords) add(id, email, name string, rec authz.Record) {
	rec.IdentityID = id
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Date(2024, 1, len(m.records)+1, 0, 0, 0, 0, time.UTC)
	}
	m.records[id] = rec
	m.users[id] = [2]string{email, name}
}

func (m *memRecords) FindByIdentity(ctx context.Context, id string) (authz.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

func (m *memRecords) SetAdmin(ctx context.Context, id string, v bool) (authz.Record, error) {
	return m.update(id, func(rec *authz.Record) { rec.IsAdmin = v })
}

func (m *memRecords) SetCapability(ctx context.Context, id string, c authz.Capability, v bool) (authz.Record, error) {
	return m.update(id, func(rec *authz.Record) { rec.Capabilities = rec.Capabilities.With(c, v) })
}

func (m *memRecords) update(id string, fn func(*authz.Record)) (authz.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.fail != nil {
		return authz.Record{}, m.fail
	}
	rec, ok := m.records[id]
	if !ok {
		return authz.Record{}, authz.ErrNoRecord
	}
	fn(&rec)
	m.records[id] = rec
	return rec, nil
}

func (m *memRecords) ListMembers(ctx context.Context) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Member, 0, len(m.records))
	for id, rec := range m.records {
		u := m.users[id]
		out = append(out, Member{IdentityID: id, Email: u[0], Name: u[1], IsAdmin: rec.IsAdmin, Capabilities: rec.Capabilities, CreatedAt: rec.CreatedAt})
	}
	return out, nil
}

type auditorStub struct {
	payloads []jobs.AuthorizationChangedPayload
	err      error
}

func (a *auditorStub) EnqueueAuthorizationChanged(ctx context.Context, p jobs.AuthorizationChangedPayload) error {
	a.payloads = append(a.payloads, p)
	return a.err
}

var adminState = authz.State{IdentityID: "admin-1", IsAdmin: true}

func TestServiceRejectsNonAdmins(t *testing.T) {
	recs := newMemRecords()
	recs.add("u1", "u1@example.com", "User", authz.Record{})
	svc := NewService(recs, recs, nil, nil, nil)

	st := authz.State{IdentityID: "u1", Capabilities: authz.CapabilitySetOf(authz.All()...)}
	_, err := svc.SetCapability(context.Background(), st, "u1", authz.EditSales, true)
	require.ErrorIs(t, err, authz.ErrDenied)
	_, err = svc.Members(context.Background(), st)
	require.ErrorIs(t, err, authz.ErrDenied)
	_, err = svc.SetAdmin(context.Background(), authz.State{IdentityID: "u1", IsAdmin: true, Loading: true}, "u1", true)
	require.ErrorIs(t, err, authz.ErrDenied)
	assert.Zero(t, recs.writes)
}

func TestCapabilityChangeIsSeenByFreshLoad(t *testing.T) {
	recs := newMemRecords()
	recs.add("u1", "u1@example.com", "User", authz.Record{Capabilities: authz.CapabilitySetOf(authz.ViewSales)})
	auditor := &auditorStub{}
	svc := NewService(recs, recs, auditor, nil, nil)
	registry := authz.NewRegistry(recs, nil, nil)

	active := registry.Store("sess-before")
	active.SetIdentity(context.Background(), "u1")
	require.False(t, active.Wait(context.Background()).Can(authz.EditSales))

	rec, err := svc.SetCapability(context.Background(), adminState, "u1", authz.EditSales, true)
	require.NoError(t, err)
	assert.True(t, rec.Capabilities.Has(authz.EditSales))

	fresh := registry.Store("sess-after")
	fresh.SetIdentity(context.Background(), "u1")
	st := fresh.Wait(context.Background())
	assert.True(t, st.Can(authz.EditSales))
	assert.True(t, st.Can(authz.ViewSales))

	// Sessions that already resolved keep their snapshot.
	assert.False(t, active.State().Can(authz.EditSales))

	require.Len(t, auditor.payloads, 1)
	p := auditor.payloads[0]
	assert.Equal(t, "admin-1", p.ActorID)
	assert.Equal(t, "u1", p.TargetID)
	assert.Equal(t, jobs.FieldCapability, p.Field)
	assert.Equal(t, "edit-sales", p.Capability)
	assert.True(t, p.Value)
}

func TestFailedWriteLeavesRecordAndSkipsAudit(t *testing.T) {
	recs := newMemRecords()
	recs.add("u1", "u1@example.com", "User", authz.Record{IsAdmin: false})
	recs.fail = errors.New("connection reset")
	auditor := &auditorStub{}
	svc := NewService(recs, recs, auditor, nil, nil)

	_, err := svc.SetAdmin(context.Background(), adminState, "u1", true)
	require.Error(t, err)
	rec, _, _ := recs.FindByIdentity(context.Background(), "u1")
	assert.False(t, rec.IsAdmin)
	assert.Empty(t, auditor.payloads)
}

func TestEnqueueFailureDoesNotFailWrite(t *testing.T) {
	recs := newMemRecords()
	recs.add("u1", "u1@example.com", "User", authz.Record{})
	svc := NewService(recs, recs, &auditorStub{err: errors.New("redis down")}, nil, nil)

	rec, err := svc.SetAdmin(context.Background(), adminState, "u1", true)
	require.NoError(t, err)
	assert.True(t, rec.IsAdmin)
}

func TestSetCapabilityUnknownTarget(t *testing.T) {
	recs := newMemRecords()
	svc := NewService(recs, recs, nil, nil, nil)
	_, err := svc.SetCapability(context.Background(), adminState, "ghost", authz.ViewClients, true)
	require.ErrorIs(t, err, authz.ErrNoRecord)

	_, err = svc.SetCapability(context.Background(), adminState, "ghost", authz.Capability("export-sales"), true)
	require.ErrorIs(t, err, authz.ErrUnknownCapability)
}

type handlerFixture struct {
	router http.Handler
	recs   *memRecords
}

func newHandlerFixture(t *testing.T, st authz.State, sess *shared.Session) handlerFixture {
	t.Helper()
	recs := newMemRecords()
	recs.add("admin-1", "admin@example.com", "Admin", authz.Record{IsAdmin: true})
	recs.add("u1", "u1@example.com", "Sam Seller", authz.Record{Capabilities: authz.CapabilitySetOf(authz.ViewClients)})

	templates, err := view.NewEngine()
	require.NoError(t, err)
	guard := authz.Guard{
		Identity:    func(r *http.Request) (string, bool) { return st.IdentityID, st.Loading },
		LoginPath:   "/auth/login",
		LandingPath: "/",
	}
	h := NewHandler(nil, NewService(recs, recs, nil, nil, nil), templates, shared.NewCSRFManager("secret"), guard)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), sess)
			next.ServeHTTP(w, req.WithContext(authz.ContextWithState(ctx, st)))
		})
	})
	r.Route("/admin", h.MountRoutes)
	return handlerFixture{router: r, recs: recs}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandlerListsMembers(t *testing.T) {
	f := newHandlerFixture(t, adminState, &shared.Session{ID: "s"})
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Sam Seller")
	assert.Contains(t, body, `/admin/users/u1/capabilities/edit-sales`)
	assert.Contains(t, body, `/admin/users/u1/admin`)
}

func TestHandlerRedirectsNonAdmins(t *testing.T) {
	sess := &shared.Session{ID: "s"}
	st := authz.State{IdentityID: "u1", Capabilities: authz.CapabilitySetOf(authz.All()...)}
	f := newHandlerFixture(t, st, sess)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, postForm("/admin/users/u1/admin", url.Values{"value": {"true"}}))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Zero(t, f.recs.writes)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Only administrators can do that.", flash.Message)
}

func TestHandlerAnonymousGoesToLogin(t *testing.T) {
	f := newHandlerFixture(t, authz.State{}, &shared.Session{ID: "s"})
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestHandlerTogglesCapability(t *testing.T) {
	sess := &shared.Session{ID: "s"}
	f := newHandlerFixture(t, adminState, sess)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, postForm("/admin/users/u1/capabilities/edit-sales", url.Values{"value": {"true"}}))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, usersPath, rr.Header().Get("Location"))

	rec, _, _ := f.recs.FindByIdentity(context.Background(), "u1")
	assert.True(t, rec.Capabilities.Has(authz.EditSales))
	assert.True(t, rec.Capabilities.Has(authz.ViewClients))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Permission to edit sales granted.", flash.Message)

	// The value is explicit, so repeating it is idempotent.
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, postForm("/admin/users/u1/capabilities/edit-sales", url.Values{"value": {"true"}}))
	rec, _, _ = f.recs.FindByIdentity(context.Background(), "u1")
	assert.True(t, rec.Capabilities.Has(authz.EditSales))
}

func TestHandlerWriteErrors(t *testing.T) {
	cases := []struct {
		name    string
		path    string
		form    url.Values
		message string
	}{
		{name: "missing value", path: "/admin/users/u1/admin", form: url.Values{}, message: "Invalid request."},
		{name: "unknown capability", path: "/admin/users/u1/capabilities/export-sales", form: url.Values{"value": {"true"}}, message: "Unknown permission."},
		{name: "no record", path: "/admin/users/ghost/admin", form: url.Values{"value": {"true"}}, message: "That user has no authorization record."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := &shared.Session{ID: "s"}
			f := newHandlerFixture(t, adminState, sess)
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, postForm(tc.path, tc.form))
			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, usersPath, rr.Header().Get("Location"))
			flash := sess.PopFlash()
			require.NotNil(t, flash)
			assert.Equal(t, shared.FlashError, flash.Kind)
			assert.Equal(t, tc.message, flash.Message)
		})
	}
}
