package view

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/authz"
	"github.com/salesdesk/salesdesk/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestPageConsumesFlashAndCarriesState(t *testing.T) {
	sess := &shared.Session{ID: "s1"}
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: "You do not have permission to edit clients."})
	st := authz.State{IdentityID: "u1", Capabilities: authz.CapabilitySetOf(authz.ViewClients)}

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	ctx := shared.ContextWithSession(req.Context(), sess)
	ctx = authz.ContextWithState(ctx, st)
	data := Page(req.WithContext(ctx), shared.NewCSRFManager("secret"), "Clients", nil)

	require.NotNil(t, data.Flash)
	assert.Equal(t, "You do not have permission to edit clients.", data.Flash.Message)
	assert.Nil(t, sess.PopFlash())
	assert.NotEmpty(t, data.CSRFToken)
	assert.Equal(t, "/clients", data.CurrentPath)
	assert.Equal(t, st, data.Authz)
}

type clientRow struct {
	ID, Name, Email, Phone, Instagram string
	CreatedAt                         time.Time
}

func TestClientsListTriggers(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	render := func(caps ...authz.Capability) string {
		rr := httptest.NewRecorder()
		err := engine.Render(rr, "pages/clients_list.html", TemplateData{
			Title: "Clients",
			Authz: authz.State{IdentityID: "u1", Capabilities: authz.CapabilitySetOf(caps...)},
			Data: map[string]any{
				"Clients":    []clientRow{{ID: "c1", Name: "Ana", CreatedAt: time.Now()}},
				"Pagination": shared.NewPagination(1, 25, 1),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
		return rr.Body.String()
	}

	viewer := render(authz.ViewClients)
	assert.NotContains(t, viewer, `href="/clients/new"`)
	assert.Contains(t, viewer, `title="No permission to edit"`)
	assert.Contains(t, viewer, `title="No permission to delete"`)

	editor := render(authz.ViewClients, authz.CreateClients, authz.EditClients, authz.DeleteClients)
	assert.Contains(t, editor, `href="/clients/new"`)
	assert.Contains(t, editor, `href="/clients/c1/edit"`)
	assert.NotContains(t, editor, "No permission")
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	require.Error(t, engine.Render(rr, "pages/missing.html", TemplateData{}))
	assert.Empty(t, rr.Body.String())
}
