package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/bookkeeping/internal/ledger"
	"github.com/odyssey-erp/bookkeeping/internal/platform/httpx"
	"github.com/odyssey-erp/bookkeeping/internal/rbac"
	"github.com/odyssey-erp/bookkeeping/internal/shared"
)

// MessageAccountUpdated is the message code the edit form receives on success.
const MessageAccountUpdated = 1

type ledgerService interface {
	GetPeriod(ctx context.Context, id int64) (ledger.Period, error)
	GetAccount(ctx context.Context, id int64) (ledger.Account, error)
	GetRecord(ctx context.Context, id int64) (ledger.Record, error)
	ListPeriods(ctx context.Context, statuses ...ledger.Status) ([]ledger.Period, error)
	ListAccounts(ctx context.Context, periodID int64) ([]ledger.Account, error)
	ListRecords(ctx context.Context, accountID int64) ([]ledger.Record, error)
	Reconcile(ctx context.Context, periodID int64) (ledger.ReconcileReport, error)

	CreatePeriod(ctx context.Context, actorID int64, in ledger.CreatePeriodInput) (ledger.Period, error)
	ClosePeriod(ctx context.Context, actorID, id int64) (bool, error)
	OpenPeriod(ctx context.Context, actorID, id int64) (bool, error)
	DeletePeriod(ctx context.Context, actorID, id int64) (bool, error)
	TrashPeriod(ctx context.Context, actorID, id int64) (bool, error)
	UntrashPeriod(ctx context.Context, actorID, id int64) (bool, error)

	CreateAccount(ctx context.Context, actorID, periodID int64, in ledger.CreateAccountInput) (ledger.Account, error)
	UpdateAccount(ctx context.Context, actorID, id int64, in ledger.UpdateAccountInput) (ledger.Account, error)
	SetLedgerID(ctx context.Context, actorID, id, ledgerID int64) (bool, error)
	CloseAccount(ctx context.Context, actorID, id int64) (bool, error)
	OpenAccount(ctx context.Context, actorID, id int64) (bool, error)
	DeleteAccount(ctx context.Context, actorID, id int64) (bool, error)
	TrashAccount(ctx context.Context, actorID, id int64) (bool, error)
	UntrashAccount(ctx context.Context, actorID, id int64) (bool, error)

	CreateRecord(ctx context.Context, actorID, accountID int64, in ledger.RecordInput) (ledger.Record, error)
	UpdateRecord(ctx context.Context, actorID, id int64, in ledger.UpdateRecordInput) (ledger.Record, error)
	DeleteRecord(ctx context.Context, actorID, id int64) (bool, error)
	TrashRecord(ctx context.Context, actorID, id int64) (bool, error)
	UntrashRecord(ctx context.Context, actorID, id int64) (bool, error)
}

// ReconcileQueue schedules a reconcile run in the background.
type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, periodID int64) (string, error)
}

// Handler exposes the ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  ledgerService
	resolver ledger.PeriodResolver
	rbac     rbac.Middleware
	queue    ReconcileQueue
	basePath string
}

// NewHandler builds a ledger handler. basePath is where MountRoutes is mounted
// and is used to build form redirects.
func NewHandler(logger *slog.Logger, service ledgerService, resolver ledger.PeriodResolver, rbacMW rbac.Middleware, basePath string) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		resolver: resolver,
		rbac:     rbacMW,
		basePath: strings.TrimRight(basePath, "/"),
	}
}

// WithQueue enables asynchronous reconciles via ?async=true.
func (h *Handler) WithQueue(q ReconcileQueue) *Handler {
	h.queue = q
	return h
}

// MountRoutes registers ledger routes. Identify must run before these handlers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.listPeriods)
		r.Get("/current", h.currentPeriod)
		r.With(h.rbac.Require(rbac.ActionCreate, ledger.KindPeriod, "")).Post("/", h.createPeriod)
		r.Route("/{id}", func(r chi.Router) {
			r.With(h.rbac.Require(rbac.ActionRead, ledger.KindPeriod, "id")).Get("/", h.getPeriod)
			r.With(h.rbac.Require(rbac.ActionRead, ledger.KindPeriod, "id")).Get("/accounts", h.listAccounts)
			r.With(h.rbac.Require(rbac.ActionCreate, ledger.KindAccount, "id")).Post("/accounts", h.createAccount)
			r.With(h.rbac.Require(rbac.ActionClose, ledger.KindPeriod, "id")).Post("/close", h.mutate(h.service.ClosePeriod))
			r.With(h.rbac.RequireReopen(ledger.KindPeriod, "id")).Post("/open", h.mutate(h.service.OpenPeriod))
			r.With(h.rbac.Require(rbac.ActionDelete, ledger.KindPeriod, "id")).Delete("/", h.mutate(h.service.DeletePeriod))
			r.With(h.rbac.RequireTrash(ledger.KindPeriod, "id")).Post("/trash", h.mutate(h.service.TrashPeriod))
			r.With(h.rbac.RequireUntrash(ledger.KindPeriod, "id")).Post("/untrash", h.mutate(h.service.UntrashPeriod))
			r.With(h.rbac.Require(rbac.ActionAdmin, ledger.KindPeriod, "id")).Post("/reconcile", h.reconcile)
		})
	})

	r.Route("/accounts", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ActionCreate, ledger.KindAccount, "")).Post("/", h.createAccount)
		r.Route("/{id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.Require(rbac.ActionRead, ledger.KindAccount, "id"))
				r.Get("/", h.getAccount)
				r.Get("/records", h.listRecords)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.rbac.Require(rbac.ActionEdit, ledger.KindAccount, "id"))
				r.Patch("/", h.updateAccount)
				r.Post("/edit", h.editAccountForm)
				r.Put("/ledger-id", h.setLedgerID)
			})
			r.With(h.rbac.Require(rbac.ActionClose, ledger.KindAccount, "id")).Post("/close", h.mutate(h.service.CloseAccount))
			r.With(h.rbac.RequireReopen(ledger.KindAccount, "id")).Post("/open", h.mutate(h.service.OpenAccount))
			r.With(h.rbac.Require(rbac.ActionDelete, ledger.KindAccount, "id")).Delete("/", h.mutate(h.service.DeleteAccount))
			r.With(h.rbac.RequireTrash(ledger.KindAccount, "id")).Post("/trash", h.mutate(h.service.TrashAccount))
			r.With(h.rbac.RequireUntrash(ledger.KindAccount, "id")).Post("/untrash", h.mutate(h.service.UntrashAccount))
			r.With(h.rbac.Require(rbac.ActionCreate, ledger.KindRecord, "id")).Post("/records", h.createRecord)
		})
	})

	r.Route("/records/{id}", func(r chi.Router) {
		r.With(h.rbac.Require(rbac.ActionRead, ledger.KindRecord, "id")).Get("/", h.getRecord)
		r.With(h.rbac.Require(rbac.ActionEdit, ledger.KindRecord, "id")).Patch("/", h.updateRecord)
		r.With(h.rbac.Require(rbac.ActionDelete, ledger.KindRecord, "id")).Delete("/", h.mutate(h.service.DeleteRecord))
		r.With(h.rbac.RequireTrash(ledger.KindRecord, "id")).Post("/trash", h.mutate(h.service.TrashRecord))
		r.With(h.rbac.RequireUntrash(ledger.KindRecord, "id")).Post("/untrash", h.mutate(h.service.UntrashRecord))
	})
}

type mutation func(ctx context.Context, actorID, id int64) (bool, error)

// mutate adapts an idempotent lifecycle call. A no-op still answers 200.
func (h *Handler) mutate(fn mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.idParam(w, r)
		if !ok {
			return
		}
		changed, err := fn(r.Context(), actor(r), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, changedView{Changed: changed})
	}
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	var statuses []ledger.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := ledger.Status(strings.TrimSpace(s))
			if !validStatus(status) {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("unknown status %q", s))
				return
			}
			statuses = append(statuses, status)
		}
	}
	periods, err := h.service.ListPeriods(r.Context(), statuses...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	out := make([]periodView, 0, len(periods))
	for _, p := range periods {
		if !h.canRead(r.Context(), principal, ledger.KindPeriod, p.ID) {
			continue
		}
		out = append(out, toPeriodView(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) currentPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.CurrentPeriodID(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if d := h.rbac.Authorizer.Decide(r.Context(), principal, rbac.Request{Action: rbac.ActionRead, Kind: ledger.KindPeriod, EntityID: id}); !d.Allowed {
		h.writeError(w, r, d.Err())
		return
	}
	p, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodView(p))
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.service.CreatePeriod(r.Context(), actor(r), ledger.CreatePeriodInput{Spectators: req.Spectators})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPeriodView(p))
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodView(p))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async && h.queue != nil {
		taskID, err := h.queue.EnqueueReconcile(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	report, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconcileView(report))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountView(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

// createAccount serves both /periods/{id}/accounts and /accounts; the latter
// books into the current open period.
func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var periodID int64
	if chi.URLParam(r, "id") != "" {
		id, ok := h.idParam(w, r)
		if !ok {
			return
		}
		periodID = id
	} else {
		id, err := h.resolver.CurrentPeriodID(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		periodID = id
	}
	var req accountRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.service.CreateAccount(r.Context(), actor(r), periodID, ledger.CreateAccountInput{
		LedgerID:   req.LedgerID,
		Type:       ledger.AccountType(req.Type),
		FromValue:  req.FromValue,
		Spectators: req.Spectators,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountView(a))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	a, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountView(a))
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req accountPatch
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.service.UpdateAccount(r.Context(), actor(r), id, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountView(a))
}

func (h *Handler) setLedgerID(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req ledgerIDRequest
	if !h.decode(w, r, &req) {
		return
	}
	changed, err := h.service.SetLedgerID(r.Context(), actor(r), id, req.LedgerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, changedView{Changed: changed})
}

// editAccountForm handles the classic form post. Ledger id rejections bounce
// back to the edit page with their message code instead of a problem body.
func (h *Handler) editAccountForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid form")
		return
	}
	var in ledger.UpdateAccountInput
	_, numbered := r.PostForm["ledger_id"]
	ledgerID, err := formInt(r.PostForm.Get("ledger_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid ledger_id")
		return
	}
	if raw := strings.TrimSpace(r.PostForm.Get("type")); raw != "" {
		typ := ledger.AccountType(raw)
		in.Type = &typ
	}
	if raw := strings.TrimSpace(r.PostForm.Get("from_value")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid from_value")
			return
		}
		in.FromValue = &v
	}

	// a blank ledger id on the form clears the number, which is rejected
	if numbered {
		in.LedgerID = &ledgerID
	}
	if _, err := h.service.UpdateAccount(r.Context(), actor(r), id, in); err != nil {
		h.formError(w, r, id, err)
		return
	}
	h.redirect(w, r, fmt.Sprintf("/accounts/%d", id), MessageAccountUpdated)
}

func (h *Handler) formError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var idErr *ledger.LedgerIDError
	if errors.As(err, &idErr) {
		h.redirect(w, r, fmt.Sprintf("/accounts/%d/edit", id), idErr.MessageCode())
		return
	}
	h.writeError(w, r, err)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	records, err := h.service.ListRecords(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordView(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req recordRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.CreateRecord(r.Context(), actor(r), id, ledger.RecordInput{
		Value:     req.Value,
		ValueType: ledger.ValueType(req.ValueType),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRecordView(rec))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordView(rec))
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req recordPatch
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.UpdateRecord(r.Context(), actor(r), id, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordView(rec))
}

func (h *Handler) canRead(ctx context.Context, p rbac.Principal, kind ledger.Kind, id int64) bool {
	return h.rbac.Authorizer.Decide(ctx, p, rbac.Request{Action: rbac.ActionRead, Kind: kind, EntityID: id}).Allowed
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string, code int) {
	http.Redirect(w, r, fmt.Sprintf("%s%s?message=%d", h.basePath, path, code), http.StatusSeeOther)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var idErr *ledger.LedgerIDError
	if errors.As(err, &idErr) {
		httpx.ProblemCode(w, http.StatusConflict, "Ledger ID Rejected", idErr.Error(), idErr.MessageCode())
		return
	}
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrNotAllowed) || errors.Is(err, ledger.ErrInvalidInput) {
		httpx.RespondError(w, err, mapLedgerError)
		return
	}
	h.logger.Error("ledger request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	httpx.RespondError(w, err, mapLedgerError)
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ledger.ErrNotAllowed):
		return httpx.ErrForbidden
	case errors.Is(err, ledger.ErrInvalidInput):
		return httpx.ErrValidation
	}
	return nil
}

func actor(r *http.Request) int64 {
	id, _ := shared.ActorFromContext(r.Context())
	return id
}

func formInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func validStatus(s ledger.Status) bool {
	switch s {
	case ledger.StatusOpen, ledger.StatusClosed, ledger.StatusTrash:
		return true
	}
	return false
}
