package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/internal/service"
	"github.com/pesio-ai/be-trade-contracts/pkg/errors"
	"github.com/pesio-ai/be-trade-contracts/pkg/logger"
)

const (
	TenantIDHeader = "X-Tenant-ID"
	UserIDHeader   = "X-User-ID"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.ContractService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.ContractService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/contracts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListContracts(w, r)
		case http.MethodPost:
			h.CreateContract(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/contracts/get", h.GetContract)
	mux.HandleFunc("/api/v1/contracts/update", h.UpdateContract)
	mux.HandleFunc("/api/v1/contracts/activate", h.ActivateContract)
	mux.HandleFunc("/api/v1/contracts/cancel", h.CancelContract)
	mux.HandleFunc("/api/v1/contracts/delete", h.DeleteContract)
	mux.HandleFunc("/api/v1/contracts/document", h.IssueContractDocument)

	mux.HandleFunc("/api/v1/amendments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListAmendments(w, r)
		case http.MethodPost:
			h.CreateAmendment(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/amendments/get", h.GetAmendment)
	mux.HandleFunc("/api/v1/amendments/approve", h.ApproveAmendment)
	mux.HandleFunc("/api/v1/amendments/reject", h.RejectAmendment)
	mux.HandleFunc("/api/v1/amendments/cancel", h.CancelAmendment)

	mux.HandleFunc("/api/v1/fulfilment", h.GetFulfilment)
	mux.HandleFunc("/api/v1/fulfilment/summary", h.GetFulfilmentSummary)
	mux.HandleFunc("/api/v1/fulfilment/delayed", h.GetDelayedDeliveries)
	mux.HandleFunc("/api/v1/fulfilment/upcoming", h.GetUpcomingDeliveries)
	mux.HandleFunc("/api/v1/fulfilment/deliveries", h.RecordDelivery)
	mux.HandleFunc("/api/v1/fulfilment/pricing", h.RecordPricing)
	mux.HandleFunc("/api/v1/fulfilment/invoicing", h.RecordInvoicing)
	mux.HandleFunc("/api/v1/fulfilment/schedule", h.AddDeliverySchedule)
	mux.HandleFunc("/api/v1/fulfilment/schedule/status", h.UpdateDeliveryStatus)
}

type createContractBody struct {
	ContractNo     string                `json:"contract_no"`
	Type           domain.ContractType   `json:"type"`
	Commodity      domain.Commodity      `json:"commodity"`
	CounterpartyID string                `json:"counterparty_id"`
	Incoterm       string                `json:"incoterm"`
	DeliveryWindow domain.DeliveryWindow `json:"delivery_window"`
	Qty            domain.Quantity       `json:"qty"`
	Pricing        domain.Pricing        `json:"pricing"`
	Delivery       domain.DeliveryTerms  `json:"delivery"`
	Notes          *string               `json:"notes"`
}

// CreateContract handles create contract HTTP requests
func (h *HTTPHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}

	var body createContractBody
	if !decode(w, r, &body) {
		return
	}

	contract, err := h.service.CreateContract(r.Context(), &service.CreateContractRequest{
		TenantID:       tenantID,
		UserID:         userID,
		ContractNo:     body.ContractNo,
		Type:           body.Type,
		Commodity:      body.Commodity,
		CounterpartyID: body.CounterpartyID,
		Incoterm:       body.Incoterm,
		DeliveryWindow: body.DeliveryWindow,
		Qty:            body.Qty,
		Pricing:        body.Pricing,
		Delivery:       body.Delivery,
		Notes:          body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}

// GetContract handles get contract HTTP requests
func (h *HTTPHandler) GetContract(w http.ResponseWriter, r *http.Request) {
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

	contract, err := h.service.GetContract(r.Context(), id, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// ListContracts handles list contracts HTTP requests
func (h *HTTPHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := service.ListContractsRequest{
		TenantID: tenantID,
		Search:   q.Get("search"),
		SortBy:   q.Get("sort_by"),
		SortDesc: strings.EqualFold(q.Get("sort_dir"), "desc"),
	}
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			req.Statuses = append(req.Statuses, domain.ContractStatus(strings.TrimSpace(st)))
		}
	}
	if v := q.Get("type"); v != "" {
		t := domain.ContractType(v)
		req.Type = &t
	}
	if v := q.Get("commodity"); v != "" {
		c := domain.Commodity(v)
		req.Commodity = &c
	}
	if v := q.Get("counterparty_id"); v != "" {
		req.CounterpartyID = &v
	}

	var err error
	if req.DeliveryFrom, err = queryTime(q.Get("delivery_from"), "delivery_from"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DeliveryTo, err = queryTime(q.Get("delivery_to"), "delivery_to"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Page, err = queryInt(q.Get("page"), "page"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.PageSize, err = queryInt(q.Get("page_size"), "page_size"); err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.service.GetContracts(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type updateContractBody struct {
	ID              string `json:"id"`
	ExpectedVersion *int   `json:"expected_version"`
	domain.ContractPatch
}

// UpdateContract handles update contract HTTP requests
func (h *HTTPHandler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}

	var body updateContractBody
	if !decode(w, r, &body) {
		return
	}

	contract, err := h.service.UpdateContract(r.Context(), &service.UpdateContractRequest{
		ID:              body.ID,
		TenantID:        tenantID,
		UserID:          userID,
		ExpectedVersion: body.ExpectedVersion,
		Patch:           body.ContractPatch,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

type idBody struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ActivateContract handles activate contract HTTP requests
func (h *HTTPHandler) ActivateContract(w http.ResponseWriter, r *http.Request) {
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

	contract, err := h.service.ActivateContract(r.Context(), body.ID, tenantID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// CancelContract handles cancel contract HTTP requests
func (h *HTTPHandler) CancelContract(w http.ResponseWriter, r *http.Request) {
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

	contract, err := h.service.CancelContract(r.Context(), body.ID, tenantID, userID, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

// DeleteContract handles delete contract HTTP requests
func (h *HTTPHandler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodDelete) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteContract(r.Context(), id, tenantID, userID, r.URL.Query().Get("reason")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IssueContractDocument handles issue contract document HTTP requests
func (h *HTTPHandler) IssueContractDocument(w http.ResponseWriter, r *http.Request) {
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

	doc, err := h.service.IssueContractDocument(r.Context(), body.ID, tenantID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// identity reads the caller's tenant and user. The tenant is required.
func identity(w http.ResponseWriter, r *http.Request) (tenantID, userID string, ok bool) {
	tenantID = r.Header.Get(TenantIDHeader)
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.InvalidInput("tenant_id", TenantIDHeader+" header is required")))
		return "", "", false
	}
	return tenantID, r.Header.Get(UserIDHeader), true
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.InvalidInput(name, name+" is required")))
		return "", false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(errors.InvalidInput("body", "Invalid request body")))
		return false
	}
	return true
}

func queryTime(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t, err = time.Parse(time.DateOnly, v)
	}
	if err != nil {
		return nil, errors.InvalidInput(field, "expected an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return &t, nil
}

func queryInt(v, field string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.InvalidInput(field, "expected an integer")
	}
	return n, nil
}

type errorPayload struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
}

func errorBody(err error) map[string]errorPayload {
	p := errorPayload{Code: errors.CodeOf(err), Message: err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		p.Message = appErr.Message
		p.Field = appErr.Field
	}
	if p.Code == errors.ErrCodeInternal {
		p.Message = "internal error"
	}
	return map[string]errorPayload{"error": p}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
