package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/stkpush/internal/http/auth"
	"github.com/MrJamesThe3rd/stkpush/internal/http/response"
	"github.com/MrJamesThe3rd/stkpush/internal/payment"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	initiator  *payment.Initiator
	reconciler *payment.Reconciler
}

func NewHandler(initiator *payment.Initiator, reconciler *payment.Reconciler) *Handler {
	return &Handler{initiator: initiator, reconciler: reconciler}
}

// Routes registers the caller-facing endpoints. The provider callback is served
// separately through Callback since it never carries a caller identity.
func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.AllowContentType("application/json")).Post("/", h.submit)
}

type submitRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Amount      decimal.Decimal `json:"amount"`
	UserID      *string         `json:"userId,omitempty"`
}

type submitResponse struct {
	Success           bool      `json:"success"`
	TransactionID     uuid.UUID `json:"transactionId"`
	CorrelationID     string    `json:"correlationId"`
	MerchantRequestID string    `json:"merchantRequestId,omitempty"`
	Message           string    `json:"message,omitempty"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// An authenticated caller always acts as themselves.
	if user, ok := auth.UserFromContext(r.Context()); ok {
		req.UserID = &user
	}

	res, err := h.initiator.InitiatePayment(r.Context(), payment.Request{
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		UserID:      req.UserID,
	})
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("failed to initiate payment", "error", err)
		}

		response.Error(w, status, msg)

		return
	}

	response.JSON(w, http.StatusOK, submitResponse{
		Success:           true,
		TransactionID:     res.TransactionID,
		CorrelationID:     res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		Message:           res.CustomerMessage,
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, payment.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrConfiguration):
		return http.StatusInternalServerError, payment.ErrConfiguration.Error()
	case errors.Is(err, payment.ErrUpstreamAuth):
		return http.StatusBadGateway, payment.ErrUpstreamAuth.Error()
	case errors.Is(err, payment.ErrUpstreamRequest):
		if msg, ok := payment.ProviderMessage(err); ok {
			return http.StatusBadGateway, msg
		}

		return http.StatusBadGateway, payment.ErrUpstreamRequest.Error()
	case errors.Is(err, payment.ErrStorage):
		return http.StatusInternalServerError, "payment was requested but could not be recorded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = callbackAck{ResultCode: 0, ResultDesc: "Accepted"}

// Callback always acknowledges; the provider retries anything else.
// The provider's content type is not ours to enforce.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("failed to read callback body", "error", err, "payload", string(payload))
		response.JSON(w, http.StatusOK, accepted)

		return
	}

	h.reconciler.Reconcile(r.Context(), payload)

	response.JSON(w, http.StatusOK, accepted)
}
