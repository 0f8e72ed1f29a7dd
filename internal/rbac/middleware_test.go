package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/shared"
)

type staticResolver struct {
	set CapabilitySet
	err error
}

func (s staticResolver) ResolveIdentity(ctx context.Context, identity *shared.Identity) (CapabilitySet, error) {
	return s.set, s.err
}

type staticLockouts struct {
	locked bool
}

func (s staticLockouts) HasActiveLockout(ctx context.Context, userID int64) (bool, error) {
	return s.locked, nil
}

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) AuthzDecision(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func gateRequest(t *testing.T, gate Middleware, identity *shared.Identity, mw func(http.Handler) http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if identity != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGateAnonymousIsUnauthorized(t *testing.T) {
	metrics := &recordingMetrics{}
	gate := Middleware{Resolver: staticResolver{}, Metrics: metrics}

	rec := gateRequest(t, gate, nil, gate.RequireCapability("chat:read"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, []string{"unauthenticated"}, metrics.outcomes)
}

func TestGateMissingCapabilityIsGenericForbidden(t *testing.T) {
	gate := Middleware{Resolver: staticResolver{set: NewCapabilitySet(false, []string{"chat:read"}, nil)}}

	rec := gateRequest(t, gate, &shared.Identity{UserID: 1, TenantID: 1}, gate.RequireCapability("invoices:send"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "invoices:send")
}

func TestGateAllowsGrantedCapability(t *testing.T) {
	metrics := &recordingMetrics{}
	gate := Middleware{
		Resolver: staticResolver{set: NewCapabilitySet(false, []string{"chat:read"}, nil)},
		Metrics:  metrics,
	}

	rec := gateRequest(t, gate, &shared.Identity{UserID: 1, TenantID: 1}, gate.RequireCapability("chat:read"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"allow"}, metrics.outcomes)
}

func TestGateModeAnyAndAll(t *testing.T) {
	gate := Middleware{Resolver: staticResolver{set: NewCapabilitySet(false, []string{"chat:read"}, nil)}}
	identity := &shared.Identity{UserID: 1, TenantID: 1}

	rec := gateRequest(t, gate, identity, gate.RequireCapabilities(ModeAny, "chat:read", "invoices:send"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = gateRequest(t, gate, identity, gate.RequireCapabilities(ModeAll, "chat:read", "invoices:send"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateLockoutBlocksRegardlessOfCapabilities(t *testing.T) {
	metrics := &recordingMetrics{}
	gate := Middleware{
		Resolver: staticResolver{set: NewCapabilitySet(true, nil, nil)},
		Lockouts: staticLockouts{locked: true},
		Metrics:  metrics,
	}

	rec := gateRequest(t, gate, &shared.Identity{UserID: 1, TenantID: 1}, gate.RequireCapability("chat:read"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, []string{"locked"}, metrics.outcomes)
}

func TestGateAdminRolePassesUnseenCapability(t *testing.T) {
	gate := Middleware{Resolver: staticResolver{set: NewCapabilitySet(true, nil, nil)}}

	rec := gateRequest(t, gate, &shared.Identity{UserID: 1, TenantID: 1}, gate.RequireCapability("never-granted:anywhere"))
	require.Equal(t, http.StatusOK, rec.Code)
}
