// ==============================================================================
// CORE BANKING HANDLER - internal/handler/corebank.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"vubank/internal/corebank"
	"vubank/internal/domain"
	pkgerrors "vubank/pkg/errors"
)

type CoreBankHandler struct {
	engine *corebank.Engine
	logger Logger
}

func NewCoreBankHandler(engine *corebank.Engine, log Logger) *CoreBankHandler {
	return &CoreBankHandler{engine: engine, logger: log}
}

// ProcessPayment settles one canonical payload. The engine always produces a
// response body; HTTP 200 carries both approvals and rejections.
func (h *CoreBankHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, domain.CoreBankingResponse{
			Status: string(domain.CoreStatusRejected),
			Reason: "Invalid settlement payload",
		})
		return
	}

	resp := h.engine.Process(r.Context(), &req, r.Header.Get("Authorization"))
	respondJSON(w, http.StatusOK, resp)
}

// GetPayment returns the persisted settlement record for a reference.
func (h *CoreBankHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	txnRef := mux.Vars(r)["txnRef"]

	payment, err := h.engine.Lookup(r.Context(), txnRef)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrSettlementNotFound) {
			respondError(w, http.StatusNotFound, "Settlement not found")
			return
		}
		h.logger.Error("Settlement lookup failed", map[string]interface{}{
			"txn_ref": txnRef,
			"error":   err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to fetch settlement")
		return
	}

	respondJSON(w, http.StatusOK, payment)
}
