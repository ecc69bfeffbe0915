package transaction

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/stkpush/internal/http/auth"
	"github.com/MrJamesThe3rd/stkpush/internal/http/response"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

type Handler struct {
	svc *transaction.Service
}

func NewHandler(svc *transaction.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := transaction.Status(s)
		if !status.Valid() {
			response.Error(w, http.StatusBadRequest, "invalid status")
			return
		}

		filter.Status = &status
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			response.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}

		filter.Limit = limit
	}

	if user, ok := auth.UserFromContext(r.Context()); ok {
		filter.UserID = &user
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")

		return
	}

	response.JSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid id")
		return
	}

	tx, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "transaction not found")
			return
		}

		slog.Error("failed to get transaction", "id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")

		return
	}

	// Someone else's transaction looks the same as a missing one.
	if user, ok := auth.UserFromContext(r.Context()); ok && (tx.UserID == nil || *tx.UserID != user) {
		response.Error(w, http.StatusNotFound, "transaction not found")
		return
	}

	response.JSON(w, http.StatusOK, toResponse(tx))
}
