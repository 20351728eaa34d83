package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

const etaLayout = "2006-01-02"

type HTTPHandler struct {
	bus *service.MessageBus
}

func NewHTTPHandler(bus *service.MessageBus) *HTTPHandler {
	return &HTTPHandler{bus: bus}
}

type AddBatchRequest struct {
	Ref string `json:"ref"`
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
	ETA string `json:"eta,omitempty"`
}

type AllocateRequest struct {
	OrderID string `json:"orderid"`
	SKU     string `json:"sku"`
	Qty     int    `json:"qty"`
}

type AllocateResponse struct {
	BatchRef string `json:"batchref"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func (h *HTTPHandler) AddBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}
	if req.Ref == "" || req.SKU == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "missing required fields"})
		return
	}

	var eta *time.Time
	if req.ETA != "" {
		t, err := time.Parse(etaLayout, req.ETA)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid eta, want YYYY-MM-DD"})
			return
		}
		eta = &t
	}

	if _, err := h.bus.Handle(r.Context(), domain.CreateBatch{
		Ref: req.Ref,
		SKU: req.SKU,
		Qty: req.Qty,
		ETA: eta,
	}); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}
	if req.OrderID == "" || req.SKU == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "missing required fields"})
		return
	}

	batchRef, err := h.bus.Handle(r.Context(), domain.Allocate{
		OrderID: req.OrderID,
		SKU:     req.SKU,
		Qty:     req.Qty,
	})
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		switch {
		case errors.Is(err, domain.ErrInvalidSKU):
			status = http.StatusBadRequest
			message = "invalid sku " + req.SKU
		case errors.Is(err, domain.ErrOutOfStock):
			status = http.StatusBadRequest
			message = "out of stock for " + req.SKU
		case errors.Is(err, port.ErrConcurrentUpdate):
			status = http.StatusConflict
			message = "conflicting update, retry"
		}

		writeJSON(w, status, ErrorResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusCreated, AllocateResponse{BatchRef: batchRef})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
