package impersonation

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/shared"
)

type grantResolver struct {
	grants []string
}

func (g grantResolver) ResolveIdentity(ctx context.Context, identity *shared.Identity) (rbac.CapabilitySet, error) {
	return rbac.NewCapabilitySet(false, g.grants, nil), nil
}

func newHandlerRouter(t *testing.T, f *impFixture, identity *shared.Identity, grants ...string) http.Handler {
	t.Helper()
	gate := rbac.Middleware{Resolver: grantResolver{grants: grants}}
	handler := NewHandler(slog.Default(), f.service)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), identity)))
		})
	})
	r.Route("/impersonation", func(r chi.Router) {
		handler.MountRoutes(r, gate)
	})
	return r
}

func TestStartEndpoint(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity(), shared.CapImpersonationStart)

	req := httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(`{"target_user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Token   string `json:"token"`
		Session struct {
			State        string `json:"state"`
			TargetUserID int64  `json:"target_user_id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "active", resp.Session.State)
	require.Equal(t, int64(2), resp.Session.TargetUserID)
}

func TestStartEndpointRequiresCapability(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity())

	req := httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(`{"target_user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartEndpointValidation(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity(), shared.CapImpersonationStart)

	for _, body := range []string{`{}`, `{"target_user_id":0}`, `not json`, `{"unknown":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestStartEndpointConflictStatus(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity(), shared.CapImpersonationStart)

	req := httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(`{"target_user_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(`{"target_user_id":2}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartEndpointInvalidTargetStatus(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity(), shared.CapImpersonationStart)

	req := httptest.NewRequest(http.MethodPost, "/impersonation", strings.NewReader(`{"target_user_id":404}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStopEndpoint(t *testing.T) {
	f := newImpFixture(t)
	ctx := context.Background()
	_, err := f.service.Start(ctx, adminIdentity(), 2, "", "")
	require.NoError(t, err)

	// Stopping needs no capability grant at all.
	router := newHandlerRouter(t, f, adminIdentity())
	req := httptest.NewRequest(http.MethodDelete, "/impersonation/current", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"reauthentication_required":true`)
}

func TestStopEndpointWithoutActiveSession(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity())

	req := httptest.NewRequest(http.MethodDelete, "/impersonation/current", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsEndpointRequiresAuditRead(t *testing.T) {
	f := newImpFixture(t)
	router := newHandlerRouter(t, f, adminIdentity())

	req := httptest.NewRequest(http.MethodGet, "/impersonation/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	router = newHandlerRouter(t, f, adminIdentity(), shared.CapAuditRead)
	req = httptest.NewRequest(http.MethodGet, "/impersonation/sessions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
