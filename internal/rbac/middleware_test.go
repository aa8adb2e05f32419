package rbac

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
	"github.com/odyssey-erp/bookkeeping/internal/platform/httpx"
	"github.com/odyssey-erp/bookkeeping/internal/shared"
)

func newTestRouter(w *world) http.Handler {
	mw := Middleware{
		Authorizer: w.authz,
		Roles: NewMemoryRoleStore(map[int64][]Role{
			adminID:      {RoleAdmin},
			accountantID: {RoleAccountant},
			memberID:     {RoleMember},
		}),
	}
	r := chi.NewRouter()
	r.Use(mw.Identify)
	r.With(mw.Require(ActionEdit, ledger.KindAccount, "id")).Patch("/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		actor, _ := shared.ActorFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, map[string]int64{"actor": actor})
	})
	r.With(mw.RequireTrash(ledger.KindAccount, "id")).Post("/accounts/{id}/trash", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	NewCapabilitiesHandler(w.authz).MountRoutes(r)
	return r
}

func doRequest(h http.Handler, method, path string, actor int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if actor > 0 {
		req.Header.Set(ActorHeader, fmt.Sprint(actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareRequire(t *testing.T) {
	w := newWorld(t)
	h := newTestRouter(w)
	path := fmt.Sprintf("/accounts/%d", w.account.ID)

	rec := doRequest(h, http.MethodPatch, path, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(h, http.MethodPatch, path, memberID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, http.StatusForbidden, problem.Status)

	rec = doRequest(h, http.MethodPatch, path, accountantID)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, accountantID, body["actor"])

	rec = doRequest(h, http.MethodPatch, "/accounts/999", accountantID)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(h, http.MethodPatch, "/accounts/abc", accountantID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h, http.MethodPost, path+"/trash", accountantID)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCapabilitiesHandler(t *testing.T) {
	w := newWorld(t)
	h := newTestRouter(w)

	rec := doRequest(h, http.MethodGet, "/me", accountantID)
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, []Role{RoleAccountant}, me.Roles)

	rec = doRequest(h, http.MethodGet, fmt.Sprintf("/me/capabilities/account/%d", w.account.ID), memberID)
	require.Equal(t, http.StatusOK, rec.Code)
	var caps []capabilityView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&caps))
	require.Len(t, caps, len(Actions()))
	for _, c := range caps {
		assert.False(t, c.Allowed, c.Action)
	}

	rec = doRequest(h, http.MethodGet, "/me/capabilities/invoice/1", memberID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
