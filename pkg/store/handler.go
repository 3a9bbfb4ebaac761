package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgeline/storeplane/internal/audit"
	"github.com/forgeline/storeplane/internal/httpserver"
	"github.com/forgeline/storeplane/pkg/tenant"
)

const maxIdempotencyKeyLen = 255

// CreateOptions is the POST /stores request body. It carries no fields
// today — the body is reserved for future per-store options — but is still
// decoded and validated so a client sending fields this version doesn't
// understand yet gets a 400 instead of having them silently ignored.
type CreateOptions struct{}

// Handler provides the HTTP handlers for the store provisioning API.
type Handler struct {
	svc    *Service
	audit  *audit.Writer
	logger *slog.Logger
}

// NewHandler creates a store Handler.
func NewHandler(svc *Service, audit *audit.Writer, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, audit: audit, logger: logger}
}

// Routes returns a chi.Router with the store routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.FromContext(r.Context())

	var opts CreateOptions
	if !httpserver.DecodeAndValidate(w, r, &opts) {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "Idempotency-Key must be at most 255 characters")
		return
	}

	result, err := h.svc.Create(r.Context(), tenantID, idempotencyKey)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.Replay {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, result.Store.ToResponse())

	if h.audit != nil {
		action := "create"
		if result.Replay {
			action = "create_replay"
		}
		h.audit.LogFromRequest(r, action, "store", result.Store.ID, "success", nil)
	}
}

func (h *Handler) respondCreateError(w http.ResponseWriter, err error) {
	var quotaErr *QuotaError
	var rateErr *RateLimitError
	switch {
	case errors.As(err, &quotaErr):
		httpserver.RespondError(w, http.StatusTooManyRequests, "quota_exceeded", quotaErr.Reason)
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", rateErr.Error())
	default:
		h.logger.Error("creating store failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create store")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.FromContext(r.Context())

	rows, err := h.svc.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("listing stores failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list stores")
		return
	}

	resp := make([]Response, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, row.ToResponse())
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenantID := tenant.FromContext(r.Context())

	row, err := h.svc.Get(r.Context(), id, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "store not found")
			return
		}
		h.logger.Error("getting store failed", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get store")
		return
	}
	httpserver.Respond(w, http.StatusOK, row.ToResponse())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenantID := tenant.FromContext(r.Context())

	row, message, err := h.svc.Delete(r.Context(), id, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "store not found")
			return
		}
		h.logger.Error("deleting store failed", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete store")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"message": message,
		"store":   row.ToResponse(),
	})

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"message": message})
		h.audit.LogFromRequest(r, "delete", "store", id, "success", detail)
	}
}
