package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ancourn/kaldr1-sub003/blockchain"
	"github.com/ancourn/kaldr1-sub003/dag"
	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/models"
	"github.com/ancourn/kaldr1-sub003/quantum"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler contains the HTTP handlers for the ledger API endpoints
type Handler struct {
	Chain *blockchain.Blockchain
}

// NewHandler creates and returns a new Handler instance
func NewHandler(chain *blockchain.Blockchain) *Handler {
	return &Handler{Chain: chain}
}

// SubmitTransaction handles POST requests carrying a signed transaction
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		logger.Logger.Error("Failed to decode transaction", zap.Error(err))
		writeError(w, http.StatusBadRequest, errors.New("invalid request payload"))
		return
	}

	id, err := h.Chain.SubmitTransaction(&tx)
	if err != nil {
		logger.Logger.Error("Failed to submit transaction", zap.Error(err))
		writeError(w, submitStatusCode(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Transaction accepted",
		"id":      id.String(),
	})
}

// GetTransaction handles GET requests for a transaction by id
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseTransactionID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid transaction id"))
		return
	}

	tx, ok := h.Chain.GetTransaction(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("transaction not found"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// SelectParents handles GET requests proposing parent ids for a new transaction
func (h *Handler) SelectParents(w http.ResponseWriter, r *http.Request) {
	count := models.MaxParents
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, errors.New("count must be a positive integer"))
			return
		}
		count = parsed
	}

	parents := h.Chain.SelectParents(count)
	out := make([]string, len(parents))
	for i, id := range parents {
		out[i] = id.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"parents": out,
	})
}

// GetStatus handles GET requests for the aggregated node status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Chain.GetStatus())
}

// submitStatusCode maps the submit pipeline's typed errors to HTTP codes
func submitStatusCode(err error) int {
	switch {
	case errors.Is(err, dag.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, dag.ErrDanglingParent),
		errors.Is(err, dag.ErrCycleDetected),
		errors.Is(err, dag.ErrTooManyParents),
		errors.Is(err, quantum.ErrInvalidProof),
		errors.Is(err, quantum.ErrStaleProof),
		errors.Is(err, quantum.ErrWeakResistance),
		errors.Is(err, blockchain.ErrInvalidSignature),
		errors.Is(err, blockchain.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
