package daraja

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ResultCodeSuccess is the callback result code for a completed payment.
const ResultCodeSuccess = 0

// Metadata item names sent on successful payments.
const (
	ItemAmount          = "Amount"
	ItemReceipt         = "MpesaReceiptNumber"
	ItemTransactionDate = "TransactionDate"
	ItemPhoneNumber     = "PhoneNumber"
)

type callbackEnvelope struct {
	Body *struct {
		StkCallback *struct {
			MerchantRequestID string       `json:"MerchantRequestID"`
			CheckoutRequestID string       `json:"CheckoutRequestID"`
			ResultCode        *json.Number `json:"ResultCode"`
			ResultDesc        string       `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []MetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// MetadataItem is a named value; Value may be a string, a number or absent.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// String renders the value without quotes, keeping numeric literals verbatim.
func (m MetadataItem) String() string {
	raw := bytes.TrimSpace(m.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(raw)
}

// Callback is the decoded asynchronous result of a push payment.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	// Populated on success only.
	Receipt         string
	Amount          decimal.NullDecimal
	PhoneNumber     string
	TransactionDate string

	Items []MetadataItem
}

func (c *Callback) Succeeded() bool {
	return c.ResultCode == ResultCodeSuccess
}

// Item looks up a metadata item by name.
func (c *Callback) Item(name string) (MetadataItem, bool) {
	for _, it := range c.Items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}

	return MetadataItem{}, false
}

// ParseCallback decodes a provider callback body.
func ParseCallback(payload []byte) (*Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCallback, err)
	}

	if env.Body == nil || env.Body.StkCallback == nil {
		return nil, fmt.Errorf("%w: missing Body.stkCallback", ErrMalformedCallback)
	}

	stk := env.Body.StkCallback

	if strings.TrimSpace(stk.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	if stk.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	code, err := stk.ResultCode.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: ResultCode %q: %w", ErrMalformedCallback, stk.ResultCode.String(), err)
	}

	cb := &Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRequestID: strings.TrimSpace(stk.CheckoutRequestID),
		ResultCode:        int(code),
		ResultDesc:        stk.ResultDesc,
	}

	if stk.CallbackMetadata != nil {
		cb.Items = stk.CallbackMetadata.Item
	}

	if !cb.Succeeded() {
		return cb, nil
	}

	if it, ok := cb.Item(ItemReceipt); ok {
		cb.Receipt = it.String()
	}

	if it, ok := cb.Item(ItemAmount); ok {
		if d, err := decimal.NewFromString(it.String()); err == nil {
			cb.Amount = decimal.NewNullDecimal(d)
		}
	}

	if it, ok := cb.Item(ItemPhoneNumber); ok {
		cb.PhoneNumber = it.String()
	}

	if it, ok := cb.Item(ItemTransactionDate); ok {
		cb.TransactionDate = it.String()
	}

	return cb, nil
}
