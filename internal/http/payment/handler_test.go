package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
	"github.com/MrJamesThe3rd/stkpush/internal/http/auth"
	httppayment "github.com/MrJamesThe3rd/stkpush/internal/http/payment"
	"github.com/MrJamesThe3rd/stkpush/internal/payment"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

type mocks struct {
	tokens *payment.MockTokenSource
	push   *payment.MockPushClient
	txs    *payment.MockTransactions
}

func newRouter(t *testing.T, setup func(m mocks), userID string) http.Handler {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := mocks{
		tokens: payment.NewMockTokenSource(ctrl),
		push:   payment.NewMockPushClient(ctrl),
		txs:    payment.NewMockTransactions(ctrl),
	}

	if setup != nil {
		setup(m)
	}

	settings := daraja.PushSettings{ShortCode: "174379", Passkey: "pk", CountryCode: "254"}
	h := httppayment.NewHandler(
		payment.NewInitiator(m.tokens, m.push, m.txs, settings, nil),
		payment.NewReconciler(m.txs, nil),
	)

	r := chi.NewRouter()
	if userID != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.WithUser(req.Context(), userID)))
			})
		})
	}

	r.Route("/payments", h.Routes)
	r.Post("/payments/callback", h.Callback)

	return r
}

func acceptPush(m mocks, txID uuid.UUID, wantUser *string) {
	m.tokens.EXPECT().AccessToken(gomock.Any()).Return("token", nil)
	m.push.EXPECT().PushPayment(gomock.Any(), "token", gomock.Any()).Return(&daraja.PushAck{
		MerchantRequestID: "29115-1",
		CheckoutRequestID: "ws_CO_123",
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil)
	m.txs.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p transaction.CreateParams) (*transaction.Transaction, error) {
			if wantUser == nil {
				if p.UserID != nil {
					return nil, errors.New("unexpected user id")
				}
			} else if p.UserID == nil || *p.UserID != *wantUser {
				return nil, errors.New("wrong user id")
			}

			return &transaction.Transaction{ID: txID, CheckoutRequestID: p.CheckoutRequestID, Amount: p.Amount}, nil
		})
}

func TestHandler_Submit(t *testing.T) {
	txID := uuid.New()

	tests := []struct {
		name        string
		body        string
		userID      string
		setup       func(m mocks)
		wantStatus  int
		wantInError string
	}{
		{
			name:       "Accepted",
			body:       `{"phoneNumber":"0712345678","amount":500}`,
			setup:      func(m mocks) { acceptPush(m, txID, nil) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "AmountAsString",
			body:       `{"phoneNumber":"0712345678","amount":"500","userId":"web-user"}`,
			setup:      func(m mocks) { acceptPush(m, txID, new("web-user")) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "AuthenticatedUserOverridesBody",
			body:       `{"phoneNumber":"0712345678","amount":500,"userId":"someone-else"}`,
			userID:     "user-42",
			setup:      func(m mocks) { acceptPush(m, txID, new("user-42")) },
			wantStatus: http.StatusOK,
		},
		{
			name:        "NegativeAmount",
			body:        `{"phoneNumber":"0712345678","amount":-5}`,
			wantStatus:  http.StatusBadRequest,
			wantInError: "amount must be greater than 0",
		},
		{
			name:        "SubCentAmount",
			body:        `{"phoneNumber":"0712345678","amount":"0.001"}`,
			wantStatus:  http.StatusBadRequest,
			wantInError: "amount must have at most 2 decimal places",
		},
		{
			name:        "AmountBeyondLimit",
			body:        `{"phoneNumber":"0712345678","amount":1e19}`,
			wantStatus:  http.StatusBadRequest,
			wantInError: "amount must be at most",
		},
		{
			name:       "BadJSON",
			body:       `{"phoneNumber":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "UpstreamAuth",
			body: `{"phoneNumber":"0712345678","amount":10}`,
			setup: func(m mocks) {
				m.tokens.EXPECT().AccessToken(gomock.Any()).Return("", daraja.ErrAuthFailed)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "NotConfigured",
			body: `{"phoneNumber":"0712345678","amount":10}`,
			setup: func(m mocks) {
				m.tokens.EXPECT().AccessToken(gomock.Any()).Return("", daraja.ErrMissingCredentials)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "ProviderRejected",
			body: `{"phoneNumber":"0712345678","amount":10}`,
			setup: func(m mocks) {
				m.tokens.EXPECT().AccessToken(gomock.Any()).Return("token", nil)
				m.push.EXPECT().PushPayment(gomock.Any(), "token", gomock.Any()).Return(nil, &daraja.RejectionError{
					StatusCode: 400,
					Message:    "Bad Request - Invalid PhoneNumber",
				})
			},
			wantStatus:  http.StatusBadGateway,
			wantInError: "Invalid PhoneNumber",
		},
		{
			name: "StorageFailure",
			body: `{"phoneNumber":"0712345678","amount":10}`,
			setup: func(m mocks) {
				m.tokens.EXPECT().AccessToken(gomock.Any()).Return("token", nil)
				m.push.EXPECT().PushPayment(gomock.Any(), "token", gomock.Any()).Return(&daraja.PushAck{CheckoutRequestID: "ws_CO_1"}, nil)
				m.txs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, tt.setup, tt.userID)

			req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, txID.String(), body["transactionId"])
				assert.Equal(t, "ws_CO_123", body["correlationId"])

				return
			}

			assert.NotEmpty(t, body["error"])

			if tt.wantInError != "" {
				assert.Contains(t, body["error"], tt.wantInError)
			}
		})
	}
}

func TestHandler_SubmitRequiresJSON(t *testing.T) {
	r := newRouter(t, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader("phoneNumber=0712345678"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandler_Callback(t *testing.T) {
	const payload = `{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_123","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"QWE123"},{"Name":"Amount","Value":500}]}}}}`

	tx := &transaction.Transaction{ID: uuid.New(), Status: transaction.StatusPending, CheckoutRequestID: "ws_CO_123"}

	tests := []struct {
		name  string
		body  string
		setup func(m mocks)
	}{
		{
			name: "Applied",
			body: payload,
			setup: func(m mocks) {
				m.txs.EXPECT().FindByCheckoutRequestID(gomock.Any(), "ws_CO_123").Return(tx, nil)
				m.txs.EXPECT().Resolve(gomock.Any(), tx.ID, gomock.Any()).Return(nil)
			},
		},
		{
			name: "Unmatched",
			body: payload,
			setup: func(m mocks) {
				m.txs.EXPECT().FindByCheckoutRequestID(gomock.Any(), "ws_CO_123").Return(nil, transaction.ErrNotFound)
			},
		},
		{
			name: "StorageError",
			body: payload,
			setup: func(m mocks) {
				m.txs.EXPECT().FindByCheckoutRequestID(gomock.Any(), "ws_CO_123").Return(nil, errors.New("db down"))
			},
		},
		{
			name: "Malformed",
			body: `not json`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, tt.setup, "")

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
		})
	}
}
