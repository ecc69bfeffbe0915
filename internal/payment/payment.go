// Package payment initiates push payments and reconciles their asynchronous results.
package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

//go:generate mockgen -source=payment.go -destination=deps_mock.go -package=payment
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	InvalidateToken(ctx context.Context) error
}

type PushClient interface {
	PushPayment(ctx context.Context, token string, pr daraja.PushRequest) (*daraja.PushAck, error)
}

type Transactions interface {
	Create(ctx context.Context, params transaction.CreateParams) (*transaction.Transaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error)
	Resolve(ctx context.Context, id uuid.UUID, res transaction.Resolution) error
}
