package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

// Initiation results reported to Metrics.
const (
	ResultAccepted      = "accepted"
	ResultInvalid       = "invalid"
	ResultNotConfigured = "not_configured"
	ResultAuthFailed    = "auth_failed"
	ResultRejected      = "rejected"
	ResultStorageError  = "storage_error"
)

type Request struct {
	PhoneNumber string          `validate:"required,containsany=0123456789"`
	Amount      decimal.Decimal `validate:"gt=0"`
	UserID      *string         `validate:"omitempty,max=128"`
}

type Result struct {
	TransactionID     uuid.UUID
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

type Initiator struct {
	tokens   TokenSource
	push     PushClient
	txs      Transactions
	settings daraja.PushSettings
	metrics  Metrics
	validate *validator.Validate
	now      func() time.Time
}

func NewInitiator(tokens TokenSource, push PushClient, txs Transactions, settings daraja.PushSettings, m Metrics) *Initiator {
	if m == nil {
		m = nopMetrics{}
	}

	return &Initiator{
		tokens:   tokens,
		push:     push,
		txs:      txs,
		settings: settings,
		metrics:  m,
		validate: newValidator(),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Validate decimals by value so numeric tags like gt apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}

		return nil
	}, decimal.Decimal{})

	return v
}

// InitiatePayment asks the provider to prompt the payer and records a pending
// transaction once the provider has accepted. Nothing is stored when any step
// before acceptance fails.
func (i *Initiator) InitiatePayment(ctx context.Context, req Request) (*Result, error) {
	if err := i.validateRequest(req); err != nil {
		i.metrics.PaymentInitiated(ResultInvalid)
		return nil, err
	}

	token, err := i.tokens.AccessToken(ctx)
	if err != nil {
		err = tokenError(err)
		if errors.Is(err, ErrConfiguration) {
			i.metrics.PaymentInitiated(ResultNotConfigured)
		} else {
			i.metrics.PaymentInitiated(ResultAuthFailed)
		}

		return nil, fmt.Errorf("getting access token: %w", err)
	}

	pr, err := i.settings.NewRequest(req.PhoneNumber, req.Amount, i.now())
	if err != nil {
		i.metrics.PaymentInitiated(ResultInvalid)
		return nil, fmt.Errorf("building push request: %w: %w", ErrValidation, err)
	}

	ack, err := i.push.PushPayment(ctx, token, pr)
	if err != nil {
		if errors.Is(err, daraja.ErrTokenRejected) {
			if invErr := i.tokens.InvalidateToken(ctx); invErr != nil {
				slog.Warn("failed to invalidate access token", "error", invErr)
			}

			i.metrics.PaymentInitiated(ResultAuthFailed)

			return nil, fmt.Errorf("sending push request: %w: %w", ErrUpstreamAuth, err)
		}

		i.metrics.PaymentInitiated(ResultRejected)

		return nil, fmt.Errorf("sending push request: %w: %w", ErrUpstreamRequest, err)
	}

	tx, err := i.txs.Create(ctx, transaction.CreateParams{
		PhoneNumber:       pr.PhoneNumber,
		Amount:            req.Amount,
		UserID:            req.UserID,
		CheckoutRequestID: ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
	})
	if err != nil {
		// The payer has been prompted but there is no record to reconcile against.
		slog.Error("reconciliation gap: accepted push request was not recorded",
			"checkout_request_id", ack.CheckoutRequestID,
			"merchant_request_id", ack.MerchantRequestID,
			"phone_number", pr.PhoneNumber,
			"amount", req.Amount.String(),
			"error", err,
		)
		i.metrics.PaymentInitiated(ResultStorageError)

		return nil, fmt.Errorf("recording transaction: %w: %w", ErrStorage, err)
	}

	slog.Info("push payment initiated",
		"transaction_id", tx.ID,
		"checkout_request_id", tx.CheckoutRequestID,
		"amount", tx.Amount.String(),
	)
	i.metrics.PaymentInitiated(ResultAccepted)

	return &Result{
		TransactionID:     tx.ID,
		CheckoutRequestID: tx.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
		CustomerMessage:   ack.CustomerMessage,
	}, nil
}

var fieldNames = map[string]string{
	"PhoneNumber": "phone number",
	"Amount":      "amount",
	"UserID":      "user id",
}

func (i *Initiator) validateRequest(req Request) error {
	var msgs []string

	amountChecked := false

	if err := i.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}

		for _, fe := range verrs {
			if fe.Field() == "Amount" {
				amountChecked = true
			}

			msgs = append(msgs, fieldMessage(fe))
		}
	}

	// The amount must be chargeable and storable before the provider is called.
	if !amountChecked {
		var amountErr *daraja.AmountError
		if err := i.settings.CheckAmount(req.Amount); errors.As(err, &amountErr) {
			msgs = append(msgs, fieldNames["Amount"]+" "+amountErr.Reason)
		}
	}

	if len(msgs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name, ok := fieldNames[fe.Field()]
	if !ok {
		name = strings.ToLower(fe.Field())
	}

	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "containsany":
		return name + " must contain digits"
	case "gt":
		return name + " must be greater than " + fe.Param()
	case "max":
		return name + " must be at most " + fe.Param() + " characters"
	default:
		return name + " is invalid"
	}
}
