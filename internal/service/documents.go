package service

import (
	"context"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
)

// IssueContractDocument renders the contract through the documents service
// and returns the document id with its download URL. Draft and cancelled
// contracts have no binding terms to issue.
func (s *ContractService) IssueContractDocument(ctx context.Context, id, tenantID, userID string) (*ContractDocument, error) {
	if s.documents == nil {
		return nil, errors.New(errors.ErrCodeInternal, "documents service is not configured")
	}

	c, err := s.contracts.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.ContractStatusDraft || c.Status == domain.ContractStatusCancelled {
		return nil, errors.IllegalTransition(entityContract, string(c.Status), "issue document")
	}

	documentID, err := s.documents.CreateDocument(ctx, tenantID, c, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create contract document")
	}
	fileURL, err := s.documents.GetDocumentFileURL(ctx, tenantID, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get contract document url")
	}

	s.audit(ctx, tenantID, userID, entityContract, c.ID, "issue_document", nil, map[string]any{
		"document_id": documentID,
	})
	s.publish(ctx, EventContractDocumentIssued, c.ID, tenantID, userID, c.Version, map[string]any{
		"document_id": documentID,
		"contract_no": c.ContractNo,
	})

	s.log.Info().
		Str("contract_id", c.ID).
		Str("document_id", documentID).
		Msg("Contract document issued")

	return &ContractDocument{ContractID: c.ID, DocumentID: documentID, FileURL: fileURL}, nil
}
