package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ResponseCodeAccepted is the in-band code for an accepted push request.
const ResponseCodeAccepted = "0"

// MaxAmount bounds every push request. Rounded up it fits an int64, and it fits the
// NUMERIC(14,2) amount column.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// PushSettings are the merchant-side values sent with every push request.
// A zero MaxAmount leaves only the global MaxAmount in force.
type PushSettings struct {
	ShortCode        string
	Passkey          string
	CallbackURL      string
	TransactionType  string
	AccountReference string
	TransactionDesc  string
	CountryCode      string
	MaxAmount        decimal.Decimal
}

// AmountError explains why an amount cannot be charged.
type AmountError struct {
	Reason string
}

func (e *AmountError) Error() string { return "daraja: invalid amount: " + e.Reason }

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// AmountLimit is the largest amount a push request built from s may carry.
func (s PushSettings) AmountLimit() decimal.Decimal {
	if s.MaxAmount.IsPositive() && s.MaxAmount.LessThan(MaxAmount) {
		return s.MaxAmount
	}

	return MaxAmount
}

// CheckAmount reports an *AmountError for amounts that are not positive, have
// sub-cent precision or exceed AmountLimit.
func (s PushSettings) CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &AmountError{Reason: "must be greater than 0"}
	}

	if !amount.Equal(amount.Truncate(2)) {
		return &AmountError{Reason: "must have at most 2 decimal places"}
	}

	if limit := s.AmountLimit(); amount.GreaterThan(limit) {
		return &AmountError{Reason: "must be at most " + limit.String()}
	}

	return nil
}

type PushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// NewRequest builds a signed push request. The provider only charges whole units,
// so fractional amounts are rounded up.
func (s PushSettings) NewRequest(phone string, amount decimal.Decimal, now time.Time) (PushRequest, error) {
	if err := s.CheckAmount(amount); err != nil {
		return PushRequest{}, err
	}

	msisdn := NormalizePhone(phone, s.CountryCode)
	ts := Timestamp(now)

	return PushRequest{
		BusinessShortCode: s.ShortCode,
		Password:          Password(s.ShortCode, s.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   s.TransactionType,
		Amount:            amount.Ceil().IntPart(),
		PartyA:            msisdn,
		PartyB:            s.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       s.CallbackURL,
		AccountReference:  s.AccountReference,
		TransactionDesc:   s.TransactionDesc,
	}, nil
}

// PushAck is the provider's synchronous acknowledgment of a push request.
type PushAck struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// RejectionError carries the provider's reason for refusing a request.
type RejectionError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja: request rejected (%s): %s", e.Code, e.Message)
	}

	return "daraja: request rejected: " + e.Message
}

func (e *RejectionError) Unwrap() error { return ErrRequestRejected }

// PushPayment submits a push request. Provider errors are reported both through the HTTP
// status and in-band through ResponseCode; both surface as *RejectionError.
func (c *Client) PushPayment(ctx context.Context, token string, pr PushRequest) (*PushAck, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return nil, fmt.Errorf("encoding push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pushPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating push request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending push request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading push response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s", ErrTokenRejected, rejectionMessage(raw, resp.Status))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		_ = json.Unmarshal(raw, &er)

		return nil, &RejectionError{
			StatusCode: resp.StatusCode,
			Code:       er.ErrorCode,
			Message:    rejectionMessage(raw, resp.Status),
		}
	}

	var ack PushAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("decoding push response: %w", err)
	}

	if ack.ResponseCode != ResponseCodeAccepted {
		return nil, &RejectionError{
			StatusCode: resp.StatusCode,
			Code:       ack.ResponseCode,
			Message:    ack.ResponseDescription,
		}
	}

	if ack.CheckoutRequestID == "" {
		return nil, &RejectionError{
			StatusCode: resp.StatusCode,
			Message:    "acknowledgment without CheckoutRequestID",
		}
	}

	return &ack, nil
}

func rejectionMessage(raw []byte, fallback string) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.ErrorMessage != "" {
		return er.ErrorMessage
	}

	if s := strings.TrimSpace(string(raw)); s != "" && len(s) <= maxErrorBody {
		return s
	}

	return fallback
}

// IsRejection reports whether err is a provider refusal and returns its details.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}

	return nil, false
}
