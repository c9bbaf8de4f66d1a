package handler

import (
	"net/http"
	"time"

	"github.com/pesio-ai/be-trade-contracts/internal/domain"
	"github.com/pesio-ai/be-trade-contracts/internal/service"
)

type recordDeliveryBody struct {
	ContractID string               `json:"contract_id"`
	Qty        float64              `json:"qty"`
	Delivery   *domain.DeliveryData `json:"delivery"`
	Quality    *domain.QualityCheck `json:"quality"`
}

// RecordDelivery handles record delivery HTTP requests
func (h *HTTPHandler) RecordDelivery(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body recordDeliveryBody
	if !decode(w, r, &body) {
		return
	}

	res, err := h.service.RecordDelivery(r.Context(), &service.RecordDeliveryRequest{
		ContractID: body.ContractID,
		TenantID:   tenantID,
		UserID:     userID,
		Qty:        body.Qty,
		Delivery:   body.Delivery,
		Quality:    body.Quality,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type recordPricingBody struct {
	ContractID string  `json:"contract_id"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
}

// RecordPricing handles record pricing HTTP requests
func (h *HTTPHandler) RecordPricing(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body recordPricingBody
	if !decode(w, r, &body) {
		return
	}

	f, err := h.service.RecordPricing(r.Context(), &service.RecordPricingRequest{
		ContractID: body.ContractID,
		TenantID:   tenantID,
		UserID:     userID,
		Qty:        body.Qty,
		Price:      body.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type recordInvoicingBody struct {
	ContractID string  `json:"contract_id"`
	Qty        float64 `json:"qty"`
	InvoiceRef *string `json:"invoice_ref"`
}

// RecordInvoicing handles record invoicing HTTP requests
func (h *HTTPHandler) RecordInvoicing(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body recordInvoicingBody
	if !decode(w, r, &body) {
		return
	}

	f, err := h.service.RecordInvoicing(r.Context(), &service.RecordInvoicingRequest{
		ContractID: body.ContractID,
		TenantID:   tenantID,
		UserID:     userID,
		Qty:        body.Qty,
		InvoiceRef: body.InvoiceRef,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type addScheduleBody struct {
	ContractID  string    `json:"contract_id"`
	SlotID      string    `json:"slot_id"`
	PlannedDate time.Time `json:"planned_date"`
	Qty         float64   `json:"qty"`
}

// AddDeliverySchedule handles add delivery schedule HTTP requests
func (h *HTTPHandler) AddDeliverySchedule(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body addScheduleBody
	if !decode(w, r, &body) {
		return
	}

	f, err := h.service.AddDeliverySchedule(r.Context(), &service.AddDeliveryScheduleRequest{
		ContractID:  body.ContractID,
		TenantID:    tenantID,
		UserID:      userID,
		SlotID:      body.SlotID,
		PlannedDate: body.PlannedDate,
		Qty:         body.Qty,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type updateDeliveryStatusBody struct {
	ContractID string            `json:"contract_id"`
	SlotID     string            `json:"slot_id"`
	Status     domain.SlotStatus `json:"status"`
	ActualDate *time.Time        `json:"actual_date"`
}

// UpdateDeliveryStatus handles update delivery status HTTP requests
func (h *HTTPHandler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, userID, ok := identity(w, r)
	if !ok {
		return
	}
	var body updateDeliveryStatusBody
	if !decode(w, r, &body) {
		return
	}

	f, err := h.service.UpdateDeliveryStatus(r.Context(), &service.UpdateDeliveryStatusRequest{
		ContractID: body.ContractID,
		TenantID:   tenantID,
		UserID:     userID,
		SlotID:     body.SlotID,
		Status:     body.Status,
		ActualDate: body.ActualDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GetFulfilment handles get fulfilment HTTP requests
func (h *HTTPHandler) GetFulfilment(w http.ResponseWriter, r *http.Request) {
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

	f, err := h.service.GetFulfilment(r.Context(), contractID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GetFulfilmentSummary handles fulfilment summary HTTP requests
func (h *HTTPHandler) GetFulfilmentSummary(w http.ResponseWriter, r *http.Request) {
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

	summary, err := h.service.GetContractFulfilmentSummary(r.Context(), contractID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetDelayedDeliveries handles delayed deliveries HTTP requests
func (h *HTTPHandler) GetDelayedDeliveries(w http.ResponseWriter, r *http.Request) {
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

	delayed, err := h.service.GetDelayedDeliveries(r.Context(), contractID, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": delayed})
}

// GetUpcomingDeliveries handles upcoming deliveries HTTP requests
func (h *HTTPHandler) GetUpcomingDeliveries(w http.ResponseWriter, r *http.Request) {
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
	days, err := queryInt(r.URL.Query().Get("days"), "days")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	upcoming, err := h.service.GetUpcomingDeliveries(r.Context(), contractID, tenantID, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": upcoming})
}
