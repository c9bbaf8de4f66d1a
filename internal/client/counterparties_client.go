package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/httpclient"
)

// CounterpartiesClient is a client for the counterparties service
type CounterpartiesClient struct {
	client *httpclient.Client
}

// NewCounterpartiesClient creates a new counterparties service client
func NewCounterpartiesClient(baseURL string, timeout time.Duration) *CounterpartiesClient {
	return &CounterpartiesClient{
		client: httpclient.NewClient(baseURL, timeout),
	}
}

// ValidateCounterparty reports whether the counterparty exists and may trade
// for the tenant. A 404 from the service is an invalid counterparty, not an error.
func (c *CounterpartiesClient) ValidateCounterparty(ctx context.Context, counterpartyID, tenantID string) (bool, string, error) {
	q := url.Values{}
	q.Set("id", counterpartyID)
	q.Set("tenant_id", tenantID)
	path := "/api/v1/counterparties/validate?" + q.Encode()

	var resp ValidateCounterpartyResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return false, "counterparty not found", nil
		}
		return false, "", fmt.Errorf("failed to validate counterparty: %w", err)
	}

	return resp.Valid, resp.Message, nil
}
