package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/bookkeeping/internal/audit"
	"github.com/odyssey-erp/bookkeeping/internal/rbac"
)

type stubTimeline struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimeline) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimeline) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newRouter(svc TimelineService, principal *rbac.Principal) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	h.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	if principal != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.WithPrincipal(req.Context(), *principal)))
			})
		})
	}
	h.MountRoutes(r)
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineRequiresAdmin(t *testing.T) {
	svc := &stubTimeline{}
	assert.Equal(t, http.StatusUnauthorized, get(newRouter(svc, nil), "/audit").Code)

	accountant := &rbac.Principal{UserID: 2, Roles: []rbac.Role{rbac.RoleAccountant}}
	assert.Equal(t, http.StatusForbidden, get(newRouter(svc, accountant), "/audit").Code)
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &stubTimeline{result: audit.Result{
		Rows:   []audit.TimelineRow{{EventID: "ev-1", Action: "period.created", Entity: "period", EntityID: 1}},
		Paging: audit.PagingInfo{Page: 2, PageSize: 10},
	}}
	admin := &rbac.Principal{UserID: 1, Roles: []rbac.Role{rbac.RoleAdmin}}
	rec := get(newRouter(svc, admin), "/audit?actor=4&entity=account&entity_id=9&page=2&page_size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body audit.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "ev-1", body.Rows[0].EventID)

	f := svc.lastFilters
	assert.Equal(t, int64(4), f.ActorID)
	assert.Equal(t, "account", f.Entity)
	assert.Equal(t, int64(9), f.EntityID)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 10, f.PageSize)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), f.To)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), f.From)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	admin := &rbac.Principal{UserID: 1, Roles: []rbac.Role{rbac.RoleAdmin}}
	h := newRouter(&stubTimeline{}, admin)
	for _, target := range []string{
		"/audit?from=yesterday",
		"/audit?from=2026-03-10&to=2026-03-01",
		"/audit?from=2025-01-01&to=2026-03-01",
		"/audit?actor=-1",
		"/audit?page=0",
	} {
		assert.Equal(t, http.StatusBadRequest, get(h, target).Code, target)
	}
}

func TestExportCSV(t *testing.T) {
	svc := &stubTimeline{exportRows: []audit.TimelineRow{
		{At: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), EventID: "ev-2", ActorID: 1, Action: "record.deleted", Entity: "record", EntityID: 5},
	}}
	admin := &rbac.Principal{UserID: 1, Roles: []rbac.Role{rbac.RoleAdmin}}
	rec := get(newRouter(svc, admin), "/audit/export.csv?entity=record")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "ev-2,1,record.deleted,record,5")
	assert.Equal(t, "record", svc.lastFilters.Entity)
}
