package handler

import (
	"net/http"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/internal/service"
)

type createAmendmentBody struct {
	ContractID string                  `json:"contract_id"`
	Type       domain.AmendmentType    `json:"type"`
	Reason     string                  `json:"reason"`
	Changes    domain.AmendmentChanges `json:"changes"`
	Notes      *string                 `json:"notes"`
}

// CreateAmendment handles create amendment HTTP requests
func (h *HTTPHandler) CreateAmendment(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body createAmendmentBody
	if !decode(w, r, &body) {
		return
	}

	amendment, err := h.service.CreateAmendment(r.Context(), &service.CreateAmendmentRequest{
		ContractID: body.ContractID,
		TenantID:   tenantID,
		UserID:     userID,
		Type:       body.Type,
		Reason:     body.Reason,
		Changes:    body.Changes,
		Notes:      body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, amendment)
}

// GetAmendment handles get amendment HTTP requests
func (h *HTTPHandler) GetAmendment(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	amendment, err := h.service.GetAmendment(r.Context(), id, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amendment)
}

// ListAmendments handles list amendments HTTP requests
func (h *HTTPHandler) ListAmendments(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _, ok := identity(w, r)
	if !ok {
		return
	}
	contractID, ok := requireQuery(w, r, "contract_id")
	if !ok {
		return
	}

	amendments, err := h.service.ListAmendments(r.Context(), contractID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amendments": amendments})
}

// ApproveAmendment handles approve amendment HTTP requests
func (h *HTTPHandler) ApproveAmendment(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body idBody
	if !decode(w, r, &body) {
		return
	}

	res, err := h.service.ApproveAmendment(r.Context(), body.ID, tenantID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RejectAmendment handles reject amendment HTTP requests
func (h *HTTPHandler) RejectAmendment(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body idBody
	if !decode(w, r, &body) {
		return
	}

	amendment, err := h.service.RejectAmendment(r.Context(), body.ID, tenantID, userID, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amendment)
}

// CancelAmendment handles cancel amendment HTTP requests
func (h *HTTPHandler) CancelAmendment(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body idBody
	if !decode(w, r, &body) {
		return
	}

	amendment, err := h.service.CancelAmendment(r.Context(), body.ID, tenantID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amendment)
}
