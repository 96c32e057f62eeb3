// ==============================================================================
// PAYMENT HANDLER - internal/handler/payment.go
// ==============================================================================
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"vubank/internal/instruction"
	"vubank/internal/middleware"
	"vubank/internal/orchestrator"
	"vubank/internal/statestore"
	pkgerrors "vubank/pkg/errors"
)

// Logger is the subset of the logging interface handlers need.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type PaymentHandler struct {
	service   *orchestrator.Service
	parser    *instruction.Parser
	store     *statestore.Store
	apiClient string
	logger    Logger
}

func NewPaymentHandler(service *orchestrator.Service, parser *instruction.Parser, store *statestore.Store, apiClient string, log Logger) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		parser:    parser,
		store:     store,
		apiClient: apiClient,
		logger:    log,
	}
}

// Transfer accepts an XML transfer instruction and returns 202 once the
// transaction is IN_PROGRESS. Terminal synchronous failures map to 400, 402,
// and 409.
func (h *PaymentHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	if client := r.Header.Get("X-Api-Client"); client != h.apiClient {
		respondError(w, http.StatusBadRequest, "Unknown API client")
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "xml") {
		respondError(w, http.StatusBadRequest, "Content-Type must be application/xml")
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = middleware.RequestIDFromContext(r.Context())
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		acquired, err := h.store.TryLock(r.Context(), key)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to process request")
			return
		}
		if !acquired {
			h.logger.Warn("Duplicate submission suppressed", map[string]interface{}{
				"idempotency_key": key,
				"request_id":      requestID,
			})
			respondError(w, http.StatusConflict, "Duplicate request")
			return
		}
		// Covers the synchronous portion only; expiry is the fallback release.
		defer h.store.Unlock(r.Context(), key)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	instr, err := h.parser.Parse(string(body), requestID, r.Header.Get("X-Api-Client"))
	if err != nil {
		if errors.Is(err, pkgerrors.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to process instruction")
		return
	}

	result, err := h.service.Submit(r.Context(), instr, r.Header.Get("Authorization"))
	switch {
	case err == nil:
		respondJSON(w, http.StatusAccepted, result)
	case errors.Is(err, pkgerrors.ErrInsufficientBalance):
		respondJSON(w, http.StatusPaymentRequired, result)
	case errors.Is(err, pkgerrors.ErrDispatchQueueFull):
		respondJSON(w, http.StatusServiceUnavailable, result)
	default:
		h.logger.Error("Transfer submission failed", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to process transfer")
	}
}

// Status returns the current state of a transaction reference.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	txnRef := mux.Vars(r)["txnRef"]

	result, err := h.service.Status(r.Context(), txnRef)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrTransactionNotFound) {
			respondError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.logger.Error("Status lookup failed", map[string]interface{}{
			"txn_ref": txnRef,
			"error":   err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to fetch transaction status")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
