package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrAlreadyResolved   = errors.New("transaction already resolved")
	ErrDuplicateCheckout = errors.New("checkout request id already recorded")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Transaction is one acknowledged push payment.
type Transaction struct {
	ID          uuid.UUID
	PhoneNumber string
	Amount      decimal.Decimal
	UserID      *string
	Status      Status

	// CheckoutRequestID is the provider's correlation id, unique and immutable once set.
	CheckoutRequestID string
	MerchantRequestID string

	Receipt         *string
	ResultCode      *int
	ResultDesc      string
	ConfirmedAmount *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resolution is the terminal outcome applied to a pending transaction.
type Resolution struct {
	Status          Status
	Receipt         *string
	ResultCode      int
	ResultDesc      string
	ConfirmedAmount *decimal.Decimal
}
