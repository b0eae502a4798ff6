package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, actor *shared.Actor) int {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: NewService()}
	mw := m.RequireAny(PermReportsView, PermInventoryManage)

	require.Equal(t, http.StatusUnauthorized, serve(t, mw, nil))
	require.Equal(t, http.StatusForbidden, serve(t, mw, &shared.Actor{UserID: 1, Role: "staff"}))
	require.Equal(t, http.StatusNoContent, serve(t, mw, &shared.Actor{UserID: 2, Role: "storekeeper"}))
	require.Equal(t, http.StatusNoContent, serve(t, mw, &shared.Actor{UserID: 3, Role: " Finance "}))
	require.Equal(t, http.StatusForbidden, serve(t, mw, &shared.Actor{UserID: 4, Role: "janitor"}))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: NewService()}
	mw := m.RequireAll(PermRequisitionsApprove, PermRequisitionsViewAll)

	require.Equal(t, http.StatusNoContent, serve(t, mw, &shared.Actor{UserID: 1, Role: "director"}))
	require.Equal(t, http.StatusForbidden, serve(t, mw, &shared.Actor{UserID: 2, Role: "chef"}))
}

func TestApproverRolesShareApprovalPermission(t *testing.T) {
	svc := NewService()
	for _, role := range []Role{RoleOperationsManager, RoleFinance, RoleDirector, RoleAdmin} {
		require.True(t, svc.Can(role, PermRequisitionsApprove), role)
	}
	for _, role := range []Role{RoleStaff, RoleChef, RoleStorekeeper} {
		require.False(t, svc.Can(role, PermRequisitionsApprove), role)
		require.True(t, svc.Can(role, PermRequisitionsCreate), role)
	}
}

func TestEffectivePermissionsSorted(t *testing.T) {
	perms := NewService().EffectivePermissions(RoleStaff)
	require.IsNonDecreasing(t, perms)
	require.Contains(t, perms, PermOrdersPlace)
	require.NotContains(t, perms, PermReportsView)
}
