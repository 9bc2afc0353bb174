package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyServer(t *testing.T, status string, amount int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
			return
		}
		if r.URL.Path != "/transaction/verify/tx_abc123" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data":    map[string]any{"status": status, "reference": "tx_abc123", "amount": amount, "currency": "usd"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify_Outcomes(t *testing.T) {
	tests := []struct {
		status string
		want   Outcome
	}{
		{"success", OutcomeSuccess},
		{"failed", OutcomeFailure},
		{"abandoned", OutcomeFailure},
		{"reversed", OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := verifyServer(t, tt.status, 8000)
			c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})

			v, err := c.Verify(context.Background(), "tx_abc123")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
			assert.Equal(t, int64(8000), v.AmountCents)
			assert.Equal(t, "USD", v.Currency)
		})
	}
}

func TestVerify_InFlightIsUnknown(t *testing.T) {
	srv := verifyServer(t, "ongoing", 8000)
	c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})

	v, err := c.Verify(context.Background(), "tx_abc123")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	require.NotNil(t, v)
	assert.Equal(t, OutcomeUnknown, v.Outcome)
}

func TestVerify_EnvelopeError(t *testing.T) {
	srv := verifyServer(t, "success", 8000)
	c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})

	_, err := c.Verify(context.Background(), "tx_unknown")
	assert.EqualError(t, err, "gateway: Transaction reference not found")
}

func TestVerify_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.Verify(context.Background(), "tx_abc123")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})

	for i := 0; i < 5; i++ {
		_, err := c.Verify(context.Background(), "tx_abc123")
		require.Error(t, err)
	}
	_, err := c.Verify(context.Background(), "tx_abc123")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), hits.Load())
}

func TestInitialize(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://pay.example/abc","access_code":"abc","reference":"tx_1"}}`))
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL + "/", SecretKey: "sk_test", Timeout: time.Second})

	res, err := c.Initialize(context.Background(), InitRequest{Email: "a@example.com", AmountCents: 8000, Currency: "USD", Reference: "tx_1", CallbackURL: "https://shop.example/payments/callback"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", res.AuthorizationURL)
	assert.Equal(t, "tx_1", res.Reference)
	assert.Equal(t, float64(8000), got["amount"])
	assert.Equal(t, "https://shop.example/payments/callback", got["callback_url"])
}
