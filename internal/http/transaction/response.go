package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/stkpush/internal/transaction"
)

type transactionResponse struct {
	ID                uuid.UUID          `json:"id"`
	PhoneNumber       string             `json:"phoneNumber"`
	Amount            string             `json:"amount"`
	UserID            *string            `json:"userId,omitempty"`
	Status            transaction.Status `json:"status"`
	CorrelationID     string             `json:"correlationId"`
	MerchantRequestID string             `json:"merchantRequestId,omitempty"`
	Receipt           *string            `json:"receipt,omitempty"`
	ResultCode        *int               `json:"resultCode,omitempty"`
	ResultDesc        string             `json:"resultDesc,omitempty"`
	ConfirmedAmount   *string            `json:"confirmedAmount,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

func toResponse(tx *transaction.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:                tx.ID,
		PhoneNumber:       tx.PhoneNumber,
		Amount:            tx.Amount.StringFixed(2),
		UserID:            tx.UserID,
		Status:            tx.Status,
		CorrelationID:     tx.CheckoutRequestID,
		MerchantRequestID: tx.MerchantRequestID,
		Receipt:           tx.Receipt,
		ResultCode:        tx.ResultCode,
		ResultDesc:        tx.ResultDesc,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}

	if tx.ConfirmedAmount != nil {
		resp.ConfirmedAmount = new(tx.ConfirmedAmount.StringFixed(2))
	}

	return resp
}

func toResponseList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
