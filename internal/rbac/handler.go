package rbac

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
	"github.com/odyssey-erp/bookkeeping/internal/platform/httpx"
)

// CapabilitiesHandler reports what the acting user may do, so clients can hide
// controls instead of waiting for a 403.
type CapabilitiesHandler struct {
	authorizer *Authorizer
}

// NewCapabilitiesHandler builds a CapabilitiesHandler.
func NewCapabilitiesHandler(authorizer *Authorizer) *CapabilitiesHandler {
	return &CapabilitiesHandler{authorizer: authorizer}
}

// MountRoutes registers the capability routes.
func (h *CapabilitiesHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Get("/me/capabilities/{kind}/{id}", h.capabilities)
}

type meResponse struct {
	UserID int64  `json:"user_id"`
	Roles  []Role `json:"roles"`
}

func (h *CapabilitiesHandler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	roles := p.Roles
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, meResponse{UserID: p.UserID, Roles: roles})
}

type capabilityView struct {
	Action  Action `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (h *CapabilitiesHandler) capabilities(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	kind := ledger.Kind(chi.URLParam(r, "kind"))
	switch kind {
	case ledger.KindPeriod, ledger.KindAccount, ledger.KindRecord:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown kind")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	out := make([]capabilityView, 0, len(Actions()))
	for _, action := range Actions() {
		req := Request{Action: action, Kind: kind, EntityID: id}
		if action == ActionCreate {
			// creating under this entity
			req = Request{Action: action, Kind: childKind(kind), ParentID: id}
			if req.Kind == "" {
				continue
			}
		}
		d := h.authorizer.Decide(r.Context(), p, req)
		view := capabilityView{Action: action, Allowed: d.Allowed}
		if d.Reason != nil {
			view.Reason = d.Reason.Error()
		}
		out = append(out, view)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func childKind(k ledger.Kind) ledger.Kind {
	switch k {
	case ledger.KindPeriod:
		return ledger.KindAccount
	case ledger.KindAccount:
		return ledger.KindRecord
	default:
		return ""
	}
}
