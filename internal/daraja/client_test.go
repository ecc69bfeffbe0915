package daraja_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
)

var testCreds = daraja.Credentials{ConsumerKey: "key", ConsumerSecret: "secret"}

type memCache struct {
	token string
	ttl   time.Duration
	sets  int
}

func (m *memCache) Get(context.Context) (string, bool, error) {
	return m.token, m.token != "", nil
}

func (m *memCache) Set(_ context.Context, token string, ttl time.Duration) error {
	m.token, m.ttl = token, ttl
	m.sets++

	return nil
}

func (m *memCache) Delete(context.Context) error {
	m.token = ""
	return nil
}

func tokenServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}

		assert.Equal(t, "/oauth/v1/generate", r.URL.Path)
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func TestClient_AccessToken(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantToken string
		wantErr   error
	}{
		{
			name:      "Success",
			status:    http.StatusOK,
			body:      `{"access_token":"abc123","expires_in":"3599"}`,
			wantToken: "abc123",
		},
		{
			name:    "NonSuccessStatus",
			status:  http.StatusBadRequest,
			body:    `{"errorMessage":"Invalid credentials"}`,
			wantErr: daraja.ErrAuthFailed,
		},
		{
			name:    "Unparsable",
			status:  http.StatusOK,
			body:    `<html>`,
			wantErr: daraja.ErrAuthFailed,
		},
		{
			name:    "EmptyToken",
			status:  http.StatusOK,
			body:    `{"access_token":"","expires_in":"3599"}`,
			wantErr: daraja.ErrAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := tokenServer(t, tt.status, tt.body, nil)
			c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds})

			token, err := c.AccessToken(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestClient_AccessToken_MissingCredentials(t *testing.T) {
	var calls int32

	ts := tokenServer(t, http.StatusOK, `{"access_token":"abc"}`, &calls)
	c := daraja.NewClient(daraja.Options{
		BaseURL:     ts.URL,
		Credentials: daraja.Credentials{ConsumerKey: "key"},
	})

	_, err := c.AccessToken(context.Background())
	assert.ErrorIs(t, err, daraja.ErrMissingCredentials)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_AccessToken_Cache(t *testing.T) {
	var calls int32

	ts := tokenServer(t, http.StatusOK, `{"access_token":"abc123","expires_in":"3599"}`, &calls)
	cache := &memCache{}
	c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds, Cache: cache})

	for range 3 {
		token, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 3599*time.Second-time.Minute, cache.ttl)

	require.NoError(t, c.InvalidateToken(context.Background()))

	_, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

var testSettings = daraja.PushSettings{
	ShortCode:        "174379",
	Passkey:          "passkey",
	CallbackURL:      "https://example.com/api/v1/payments/callback",
	TransactionType:  "CustomerPayBillOnline",
	AccountReference: "M-Pesa Simplicity",
	TransactionDesc:  "Payment for services",
	CountryCode:      "254",
}

func TestPushSettings_NewRequest(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	req, err := testSettings.NewRequest("0712 345 678", decimal.RequireFromString("499.20"), now)
	require.NoError(t, err)

	assert.Equal(t, "20240501120000", req.Timestamp)
	assert.Equal(t, daraja.Password("174379", "passkey", req.Timestamp), req.Password)
	assert.Equal(t, "254712345678", req.PartyA)
	assert.Equal(t, "254712345678", req.PhoneNumber)
	assert.Equal(t, "174379", req.PartyB)
	assert.Equal(t, "174379", req.BusinessShortCode)
	assert.Equal(t, int64(500), req.Amount)
	assert.Equal(t, testSettings.CallbackURL, req.CallBackURL)
}

func TestPushSettings_NewRequestAmountBounds(t *testing.T) {
	limited := testSettings
	limited.MaxAmount = decimal.NewFromInt(250000)

	tests := []struct {
		name       string
		settings   daraja.PushSettings
		amount     string
		wantAmount int64
		wantReason string
	}{
		{name: "WholeAmount", settings: testSettings, amount: "500", wantAmount: 500},
		{name: "CentsRoundedUp", settings: testSettings, amount: "12.34", wantAmount: 13},
		{name: "GlobalLimit", settings: testSettings, amount: "999999999999.99", wantAmount: 1000000000000},
		{name: "ConfiguredLimit", settings: limited, amount: "250000", wantAmount: 250000},
		{name: "Zero", settings: testSettings, amount: "0", wantReason: "must be greater than 0"},
		{name: "Negative", settings: testSettings, amount: "-5", wantReason: "must be greater than 0"},
		{name: "SubCent", settings: testSettings, amount: "0.001", wantReason: "must have at most 2 decimal places"},
		{name: "ThreeDecimalPlaces", settings: testSettings, amount: "12.345", wantReason: "must have at most 2 decimal places"},
		{name: "OverflowsInt64", settings: testSettings, amount: "1e19", wantReason: "must be at most 999999999999.99"},
		{name: "FarBeyondInt64", settings: testSettings, amount: "1e25", wantReason: "must be at most 999999999999.99"},
		{name: "OverflowsColumn", settings: testSettings, amount: "1e13", wantReason: "must be at most 999999999999.99"},
		{name: "AboveConfiguredLimit", settings: limited, amount: "250000.01", wantReason: "must be at most 250000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.settings.NewRequest("0712345678", decimal.RequireFromString(tt.amount), time.Now())

			if tt.wantReason != "" {
				require.ErrorIs(t, err, daraja.ErrInvalidAmount)

				var amountErr *daraja.AmountError
				require.ErrorAs(t, err, &amountErr)
				assert.Equal(t, tt.wantReason, amountErr.Reason)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, req.Amount)
		})
	}
}

func pushServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var pr daraja.PushRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&pr))

		decoded, err := base64.StdEncoding.DecodeString(pr.Password)
		assert.NoError(t, err)
		assert.Equal(t, pr.BusinessShortCode+"passkey"+pr.Timestamp, string(decoded))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	return ts
}

func TestClient_PushPayment(t *testing.T) {
	req, err := testSettings.NewRequest("0712345678", decimal.NewFromInt(500), time.Now())
	require.NoError(t, err)

	t.Run("Accepted", func(t *testing.T) {
		ts := pushServer(t, http.StatusOK, `{
			"MerchantRequestID":"29115-34620561-1",
			"CheckoutRequestID":"ws_CO_123",
			"ResponseCode":"0",
			"ResponseDescription":"Success. Request accepted for processing",
			"CustomerMessage":"Success. Request accepted for processing"}`)
		c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds})

		ack, err := c.PushPayment(context.Background(), "tok", req)
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_123", ack.CheckoutRequestID)
		assert.Equal(t, "29115-34620561-1", ack.MerchantRequestID)
	})

	t.Run("InBandError", func(t *testing.T) {
		ts := pushServer(t, http.StatusOK, `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"1","ResponseDescription":"Unable to lock subscriber"}`)
		c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds})

		ack, err := c.PushPayment(context.Background(), "tok", req)
		assert.Nil(t, ack)
		require.ErrorIs(t, err, daraja.ErrRequestRejected)

		rej, ok := daraja.IsRejection(err)
		require.True(t, ok)
		assert.Equal(t, "1", rej.Code)
		assert.Equal(t, "Unable to lock subscriber", rej.Message)
	})

	t.Run("HTTPError", func(t *testing.T) {
		ts := pushServer(t, http.StatusBadRequest, `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`)
		c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds})

		_, err := c.PushPayment(context.Background(), "tok", req)
		require.ErrorIs(t, err, daraja.ErrRequestRejected)

		rej, ok := daraja.IsRejection(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, rej.StatusCode)
		assert.Equal(t, "400.002.02", rej.Code)
		assert.Equal(t, "Bad Request - Invalid Amount", rej.Message)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		ts := pushServer(t, http.StatusUnauthorized, `{"errorCode":"404.001.04","errorMessage":"Invalid Access Token"}`)
		c := daraja.NewClient(daraja.Options{BaseURL: ts.URL, Credentials: testCreds})

		_, err := c.PushPayment(context.Background(), "tok", req)
		assert.ErrorIs(t, err, daraja.ErrTokenRejected)
		assert.NotErrorIs(t, err, daraja.ErrRequestRejected)
	})
}
