package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/logger"
	"github.com/pesio-ai/be-trade-contracts/pkg/middleware"
)

func TestGetDecodesAndForwardsRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.RequestIDHeader) != "req-1" {
			t.Errorf("request id header = %q", r.Header.Get(middleware.RequestIDHeader))
		}
		json.NewEncoder(w).Encode(map[string]any{"valid": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	var out struct {
		Valid bool `json:"valid"`
	}
	ctx := logger.WithRequestID(context.Background(), "req-1")
	if err := c.Get(ctx, "/api/v1/counterparties/validate", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out.Valid {
		t.Error("expected valid=true")
	}
}

func TestPostNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Post(context.Background(), "/x", map[string]string{"a": "b"}, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnprocessableEntity || statusErr.Body != "nope" {
		t.Errorf("status error = %+v", statusErr)
	}
}
