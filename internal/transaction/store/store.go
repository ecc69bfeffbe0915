package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ transaction.Repository = (*Store)(nil)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a transaction row in selectColumns order.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var statusStr string

	var userID, receipt sql.NullString

	var resultCode sql.NullInt64

	var confirmed decimal.NullDecimal

	if err := s.Scan(
		&tx.ID, &tx.PhoneNumber, &tx.Amount, &userID, &statusStr,
		&tx.CheckoutRequestID, &tx.MerchantRequestID,
		&receipt, &resultCode, &tx.ResultDesc, &confirmed,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Status = transaction.Status(statusStr)

	if userID.Valid {
		tx.UserID = &userID.String
	}

	if receipt.Valid {
		tx.Receipt = &receipt.String
	}

	if resultCode.Valid {
		code := int(resultCode.Int64)
		tx.ResultCode = &code
	}

	if confirmed.Valid {
		tx.ConfirmedAmount = &confirmed.Decimal
	}

	return &tx, nil
}

const selectColumns = `
	id, phone_number, amount, user_id, status,
	checkout_request_id, merchant_request_id,
	mpesa_receipt, result_code, result_desc, confirmed_amount,
	created_at, updated_at
`

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (phone_number, amount, user_id, status, checkout_request_id, merchant_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.PhoneNumber,
		tx.Amount,
		tx.UserID,
		tx.Status,
		tx.CheckoutRequestID,
		tx.MerchantRequestID,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("creating transaction: %w", transaction.ErrDuplicateCheckout)
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE checkout_request_id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, checkoutRequestID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("finding transaction by checkout request id: %w", err)
	}

	return tx, nil
}

// UpdateStatus only touches rows that are still pending, so two concurrent
// callbacks for the same checkout cannot both win.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, res transaction.Resolution) error {
	query := `
		UPDATE transactions
		SET status = $1, mpesa_receipt = $2, result_code = $3, result_desc = $4, confirmed_amount = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		res.Status,
		res.Receipt,
		res.ResultCode,
		res.ResultDesc,
		res.ConfirmedAmount,
		id,
		transaction.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if n == 0 {
		return transaction.ErrAlreadyResolved
	}

	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE 1 = 1`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)

		args = append(args, *filter.UserID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)

	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}
