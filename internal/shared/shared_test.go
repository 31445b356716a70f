package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "sd_session", time.Hour, false), mr
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return req
}

func TestSessionRoundTripAndFlash(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), ""))
	require.NoError(t, err)
	sess.SetUser("u1")
	sess.AddFlash(FlashMessage{Kind: FlashSuccess, Message: "Saved."})
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, httptest.NewRequest(http.MethodGet, "/", nil), sess))
	assert.True(t, mr.Exists("session:"+sess.ID))
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "sd_session="+sess.ID)
	assert.Equal(t, time.Hour, mr.TTL("session:"+sess.ID))

	loaded, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), sess.ID))
	require.NoError(t, err)
	assert.Equal(t, "u1", loaded.User())
	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Saved.", flash.Message)
	assert.Nil(t, loaded.PopFlash())
}

func TestSessionUnknownIDIsNotAdopted(t *testing.T) {
	sm, _ := newTestSessions(t)
	sess, err := sm.Load(context.Background(), requestWithCookie(sm.CookieName(), "forged-id"))
	require.NoError(t, err)
	assert.NotEqual(t, "forged-id", sess.ID)
	assert.Empty(t, sess.User())
}

func TestSessionRenewDropsPreviousKey(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	sess, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), ""))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	loaded, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), oldID))
	require.NoError(t, err)
	sm.Renew(loaded)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, loaded))

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+loaded.ID))
}

func TestSessionDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestSessions(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	sess, err := sm.Load(ctx, requestWithCookie(sm.CookieName(), ""))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, req, sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestRedirectWithFlash(t *testing.T) {
	sess := &Session{ID: "s1"}
	req := httptest.NewRequest(http.MethodPost, "/clients", nil)
	req = req.WithContext(ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()

	RedirectWithFlash(rr, req, "/clients", FlashWarning, "Careful.")

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/clients", rr.Header().Get("Location"))
	assert.Equal(t, &FlashMessage{Kind: FlashWarning, Message: "Careful."}, sess.PopFlash())
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	ctx := context.Background()
	sess := &Session{ID: "s1"}

	token, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := m.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)
	assert.NoError(t, m.VerifyToken(ctx, sess, token))

	assert.ErrorIs(t, m.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(ctx, &Session{ID: "s2"}, token), ErrCSRFTokenMissing)

	other := &Session{ID: "s2"}
	other.Set(CSRFSessionKey, token)
	assert.ErrorIs(t, m.VerifyToken(ctx, other, token), ErrCSRFTokenMismatch)
	fresh, err := m.EnsureToken(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
}

func TestCSRFRotate(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "s1"}
	first, err := m.Rotate(sess)
	require.NoError(t, err)
	second, err := m.Rotate(sess)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), sess, first), ErrCSRFTokenMismatch)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, second))
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	assert.Equal(t, 4, p.TotalPages)
	assert.Equal(t, 10, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPerPage, p.PerPage)
	assert.False(t, p.HasNext())

	assert.Equal(t, 3, PageFromQuery(url.Values{"page": {"3"}}))
	assert.Equal(t, 1, PageFromQuery(url.Values{"page": {"-2"}}))
	assert.Equal(t, 1, PageFromQuery(url.Values{}))
}

func TestUserSafeMessage(t *testing.T) {
	assert.Empty(t, UserSafeMessage(nil))
	assert.Equal(t, "Invalid email or password.", UserSafeMessage(fmt.Errorf("login: %w", ErrInvalidCredentials)))
	assert.Equal(t, "The requested record was not found.", UserSafeMessage(ErrNotFound))
	assert.Equal(t, "Client is busy.", UserSafeMessage(NewUserSafeError("Client is busy.", errors.New("lock"))))
	assert.Equal(t, "Something went wrong. Please try again.", UserSafeMessage(errors.New("pq: connection reset")))
}

type auditExec struct {
	args []any
}

func (a *auditExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	a.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &auditExec{}
	l := NewAuditLogger(db)

	require.Error(t, l.Record(context.Background(), AuditLog{Action: "authz.admin.grant"}))

	require.NoError(t, l.Record(context.Background(), AuditLog{
		Action: "authz.admin.grant", Entity: "authorization_record", EntityID: "u1",
		Meta: map[string]any{"value": true},
	}))
	require.Len(t, db.args, 6)
	assert.Equal(t, "", db.args[0])
	assert.JSONEq(t, `{"value":true}`, string(db.args[4].([]byte)))
	assert.False(t, db.args[5].(time.Time).IsZero())
}
