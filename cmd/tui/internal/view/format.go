package view

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dbTimeout = 5 * time.Second

	// Long enough for a token request plus the push request.
	paymentTimeout = 45 * time.Second
)

// FormatAmount renders a monetary amount with two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatTime formats a time.Time into local YYYY-MM-DD HH:MM.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Local().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
