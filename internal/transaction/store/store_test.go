package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
	"github.com/MrJamesThe3rd/stkpush/internal/transaction/store"
)

var columns = []string{
	"id", "phone_number", "amount", "user_id", "status",
	"checkout_request_id", "merchant_request_id",
	"mpesa_receipt", "result_code", "result_desc", "confirmed_amount",
	"created_at", "updated_at",
}

func newStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.New(db), mock
}

func TestStore_CreateTransaction(t *testing.T) {
	tests := []struct {
		name       string
		setupMock  func(mock sqlmock.Sqlmock, id uuid.UUID)
		wantErr    error
		wantAnyErr bool
	}{
		{
			name: "Success",
			setupMock: func(mock sqlmock.Sqlmock, id uuid.UUID) {
				now := time.Now()
				mock.ExpectQuery(`INSERT INTO transactions`).
					WithArgs("254712345678", sqlmock.AnyArg(), nil, "pending", "ws_CO_123", "29115-1").
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
						AddRow(id.String(), now, now))
			},
		},
		{
			name: "DuplicateCheckout",
			setupMock: func(mock sqlmock.Sqlmock, _ uuid.UUID) {
				mock.ExpectQuery(`INSERT INTO transactions`).
					WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})
			},
			wantErr: transaction.ErrDuplicateCheckout,
		},
		{
			name: "DatabaseError",
			setupMock: func(mock sqlmock.Sqlmock, _ uuid.UUID) {
				mock.ExpectQuery(`INSERT INTO transactions`).
					WillReturnError(sql.ErrConnDone)
			},
			wantAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newStore(t)
			id := uuid.New()
			tt.setupMock(mock, id)

			tx := &transaction.Transaction{
				PhoneNumber:       "254712345678",
				Amount:            decimal.NewFromInt(500),
				Status:            transaction.StatusPending,
				CheckoutRequestID: "ws_CO_123",
				MerchantRequestID: "29115-1",
			}

			err := s.CreateTransaction(context.Background(), tx)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, id, tx.ID)
				assert.False(t, tx.CreatedAt.IsZero())
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_FindByCheckoutRequestID(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		s, mock := newStore(t)
		id := uuid.New()
		now := time.Now()

		mock.ExpectQuery(`SELECT .* FROM transactions WHERE checkout_request_id = \$1`).
			WithArgs("ws_CO_123").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				id.String(), "254712345678", "500", "user-1", "completed",
				"ws_CO_123", "29115-1",
				"QWE123", int64(0), "The service request is processed successfully.", "500",
				now, now,
			))

		tx, err := s.FindByCheckoutRequestID(context.Background(), "ws_CO_123")
		require.NoError(t, err)

		assert.Equal(t, id, tx.ID)
		assert.Equal(t, transaction.StatusCompleted, tx.Status)
		assert.True(t, tx.Amount.Equal(decimal.NewFromInt(500)))
		require.NotNil(t, tx.UserID)
		assert.Equal(t, "user-1", *tx.UserID)
		require.NotNil(t, tx.Receipt)
		assert.Equal(t, "QWE123", *tx.Receipt)
		require.NotNil(t, tx.ResultCode)
		assert.Equal(t, 0, *tx.ResultCode)
		require.NotNil(t, tx.ConfirmedAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PendingHasNoResult", func(t *testing.T) {
		s, mock := newStore(t)
		now := time.Now()

		mock.ExpectQuery(`SELECT .* FROM transactions WHERE checkout_request_id = \$1`).
			WithArgs("ws_CO_9").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				uuid.New().String(), "254712345678", "10.50", nil, "pending",
				"ws_CO_9", "", nil, nil, "", nil, now, now,
			))

		tx, err := s.FindByCheckoutRequestID(context.Background(), "ws_CO_9")
		require.NoError(t, err)

		assert.Equal(t, transaction.StatusPending, tx.Status)
		assert.Nil(t, tx.UserID)
		assert.Nil(t, tx.Receipt)
		assert.Nil(t, tx.ResultCode)
		assert.Nil(t, tx.ConfirmedAmount)
		assert.Equal(t, "10.5", tx.Amount.String())
	})

	t.Run("NotFound", func(t *testing.T) {
		s, mock := newStore(t)

		mock.ExpectQuery(`SELECT .* FROM transactions WHERE checkout_request_id = \$1`).
			WithArgs("ws_CO_unknown").
			WillReturnError(sql.ErrNoRows)

		_, err := s.FindByCheckoutRequestID(context.Background(), "ws_CO_unknown")
		assert.ErrorIs(t, err, transaction.ErrNotFound)
	})
}

func TestStore_GetTransaction_NotFound(t *testing.T) {
	s, mock := newStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM transactions WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := s.GetTransaction(context.Background(), id)
	assert.ErrorIs(t, err, transaction.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateStatus(t *testing.T) {
	receipt := "QWE123"
	confirmed := decimal.NewFromInt(500)

	tests := []struct {
		name         string
		rowsAffected int64
		wantErr      error
	}{
		{name: "Applied", rowsAffected: 1},
		{name: "AlreadyResolved", rowsAffected: 0, wantErr: transaction.ErrAlreadyResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newStore(t)
			id := uuid.New()

			mock.ExpectExec(`UPDATE transactions`).
				WithArgs("completed", sqlmock.AnyArg(), 0, "ok", sqlmock.AnyArg(), id, "pending").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			err := s.UpdateStatus(context.Background(), id, transaction.Resolution{
				Status:          transaction.StatusCompleted,
				Receipt:         &receipt,
				ResultDesc:      "ok",
				ConfirmedAmount: &confirmed,
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_ListTransactions(t *testing.T) {
	s, mock := newStore(t)
	status := transaction.StatusFailed
	user := "user-1"
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM transactions WHERE 1 = 1 AND status = \$1 AND user_id = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("failed", "user-1", 20).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.New().String(), "254712345678", "5", "user-1", "failed", "ws_CO_2", "m2", nil, int64(1032), "Request cancelled by user", nil, now, now).
			AddRow(uuid.New().String(), "254712345678", "7", "user-1", "failed", "ws_CO_1", "m1", nil, int64(1), "Insufficient funds", nil, now, now))

	txs, err := s.ListTransactions(context.Background(), transaction.ListFilter{
		Status: &status,
		UserID: &user,
		Limit:  20,
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "ws_CO_2", txs[0].CheckoutRequestID)
	require.NotNil(t, txs[0].ResultCode)
	assert.Equal(t, 1032, *txs[0].ResultCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
