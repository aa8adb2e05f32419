package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
	"github.com/odyssey-erp/bookkeeping/internal/platform/httpx"
	"github.com/odyssey-erp/bookkeeping/internal/shared"
)

// ActorHeader carries the authenticated user id set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

type principalContextKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = shared.ContextWithActor(ctx, p.UserID)
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authorizer *Authorizer
	Roles      RoleStore
	Logger     *slog.Logger
}

// Identify resolves the principal from ActorHeader. Requests without a valid id get 401.
func (m Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ActorHeader))
		userID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || userID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid "+ActorHeader)
			return
		}
		principal, err := LoadPrincipal(r.Context(), m.Roles, userID)
		if err != nil {
			m.logError("rbac load principal", err)
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// Require authorizes action on kind. The id comes from the chi URL param named
// param; for create actions it is the parent id. An empty param means no id.
func (m Middleware) Require(action Action, kind ledger.Kind, param string) func(http.Handler) http.Handler {
	return m.require(Request{Action: action, Kind: kind}, param)
}

// RequireReopen authorizes reopening a closed kind.
func (m Middleware) RequireReopen(kind ledger.Kind, param string) func(http.Handler) http.Handler {
	return m.require(Request{Action: ActionClose, Kind: kind, Reverse: true}, param)
}

// RequireTrash authorizes moving kind to the trash.
func (m Middleware) RequireTrash(kind ledger.Kind, param string) func(http.Handler) http.Handler {
	return m.require(Request{Action: ActionDelete, Kind: kind, Soft: true}, param)
}

// RequireUntrash authorizes restoring kind from the trash.
func (m Middleware) RequireUntrash(kind ledger.Kind, param string) func(http.Handler) http.Handler {
	return m.require(Request{Action: ActionDelete, Kind: kind, Soft: true, Reverse: true}, param)
}

func (m Middleware) require(tmpl Request, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			req := tmpl
			if param != "" {
				id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
				if err != nil || id <= 0 {
					httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
					return
				}
				if req.Action == ActionCreate {
					req.ParentID = id
				} else {
					req.EntityID = id
				}
			}
			if err := m.Authorizer.Decide(r.Context(), principal, req).Err(); err != nil {
				m.deny(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrNotAllowed):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		m.logError("rbac decide", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
