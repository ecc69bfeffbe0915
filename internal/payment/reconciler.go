package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

// Outcome is what happened to a single callback. The provider is acknowledged the
// same way for every outcome.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeMalformed Outcome = "malformed"
	OutcomeError     Outcome = "error"
)

type Reconciler struct {
	txs     Transactions
	metrics Metrics
}

func NewReconciler(txs Transactions, m Metrics) *Reconciler {
	if m == nil {
		m = nopMetrics{}
	}

	return &Reconciler{txs: txs, metrics: m}
}

// Reconcile applies a provider callback to the transaction it refers to. It never
// fails: every problem is logged with the raw payload and reported as an Outcome.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte) Outcome {
	outcome := r.reconcile(ctx, payload)
	r.metrics.CallbackReconciled(string(outcome))

	return outcome
}

func (r *Reconciler) reconcile(ctx context.Context, payload []byte) Outcome {
	cb, err := daraja.ParseCallback(payload)
	if err != nil {
		slog.Warn("discarding malformed callback",
			"error", fmt.Errorf("%w: %w", ErrMalformedCallback, err),
			"payload", string(payload),
		)

		return OutcomeMalformed
	}

	log := slog.With(
		"checkout_request_id", cb.CheckoutRequestID,
		"merchant_request_id", cb.MerchantRequestID,
		"result_code", cb.ResultCode,
	)

	tx, err := r.txs.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			log.Warn("no transaction for callback", "payload", string(payload))
			return OutcomeUnmatched
		}

		log.Error("failed to look up transaction for callback",
			"error", fmt.Errorf("%w: %w", ErrStorage, err),
			"payload", string(payload),
		)

		return OutcomeError
	}

	log = log.With("transaction_id", tx.ID)

	if tx.Status.IsTerminal() {
		log.Info("ignoring callback for resolved transaction", "status", tx.Status)
		return OutcomeDuplicate
	}

	res := resolutionFor(cb)

	if cb.Succeeded() && cb.Amount.Valid && !cb.Amount.Decimal.Equal(tx.Amount.Ceil()) {
		log.Warn("confirmed amount differs from requested amount",
			"requested", tx.Amount.String(),
			"confirmed", cb.Amount.Decimal.String(),
		)
	}

	if err := r.txs.Resolve(ctx, tx.ID, res); err != nil {
		if errors.Is(err, transaction.ErrAlreadyResolved) {
			log.Info("callback lost race to a concurrent resolution")
			return OutcomeDuplicate
		}

		log.Error("failed to resolve transaction",
			"error", fmt.Errorf("%w: %w", ErrStorage, err),
			"payload", string(payload),
		)

		return OutcomeError
	}

	log.Info("transaction resolved", "status", res.Status, "result_desc", cb.ResultDesc)

	return OutcomeApplied
}

func resolutionFor(cb *daraja.Callback) transaction.Resolution {
	res := transaction.Resolution{
		Status:     transaction.StatusFailed,
		ResultCode: cb.ResultCode,
		ResultDesc: cb.ResultDesc,
	}

	if !cb.Succeeded() {
		return res
	}

	res.Status = transaction.StatusCompleted

	if cb.Receipt != "" {
		receipt := cb.Receipt
		res.Receipt = &receipt
	}

	if cb.Amount.Valid {
		confirmed := cb.Amount.Decimal
		res.ConfirmedAmount = &confirmed
	}

	return res
}
