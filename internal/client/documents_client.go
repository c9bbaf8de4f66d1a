package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pesio-ai/be-trade-contracts/pkg/httpclient"
)

// DocumentsClient is a client for the documents service, which renders and
// stores contract documents.
type DocumentsClient struct {
	client *httpclient.Client
}

// NewDocumentsClient creates a new documents service client
func NewDocumentsClient(baseURL string, timeout time.Duration) *DocumentsClient {
	return &DocumentsClient{
		client: httpclient.NewClient(baseURL, timeout),
	}
}

// CreateDocument stores payload as a trade contract document and returns its id.
func (c *DocumentsClient) CreateDocument(ctx context.Context, tenantID string, payload any, userID string) (string, error) {
	req := CreateDocumentRequest{
		TenantID: tenantID,
		UserID:   userID,
		Kind:     "trade_contract",
		Payload:  payload,
	}

	var resp CreateDocumentResponse
	if err := c.client.Post(ctx, "/api/v1/documents", req, &resp); err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("failed to create document: empty document id")
	}

	return resp.ID, nil
}

// GetDocumentFileURL returns a download URL for a stored document.
func (c *DocumentsClient) GetDocumentFileURL(ctx context.Context, tenantID, documentID string) (string, error) {
	path := fmt.Sprintf("/api/v1/documents/%s/url?tenant_id=%s", url.PathEscape(documentID), url.QueryEscape(tenantID))

	var resp DocumentURLResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("failed to get document url: %w", err)
	}

	return resp.URL, nil
}
