package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"concilia/internal/apperrors"
	"concilia/internal/services"
)

type ReconciliationHandler struct {
	reconciliationService *services.ReconciliationService
	runningMutex          sync.Mutex
	running               bool
}

func NewReconciliationHandler(reconciliationService *services.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

func (h *ReconciliationHandler) StartReconciliation(w http.ResponseWriter, r *http.Request) {
	h.runningMutex.Lock()
	if h.running {
		h.runningMutex.Unlock()
		respondWithError(w, http.StatusConflict, "A reconciliation batch is already in progress")
		return
	}
	h.running = true
	h.runningMutex.Unlock()

	defer func() {
		h.runningMutex.Lock()
		h.running = false
		h.runningMutex.Unlock()
	}()

	result, err := h.reconciliationService.RunBatch(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *ReconciliationHandler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batch_id"]

	batch, err := h.reconciliationService.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Batch not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, batch)
}

func (h *ReconciliationHandler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.reconciliationService.ListOpenTransactions(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (h *ReconciliationHandler) ConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["external_id"]

	var request struct {
		CandidateIDs []int64 `json:"candidate_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(request.CandidateIDs) == 0 {
		respondWithError(w, http.StatusBadRequest, "candidate_ids is required")
		return
	}

	outcome, err := h.reconciliationService.Confirm(r.Context(), externalID, request.CandidateIDs)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			respondWithError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, apperrors.ErrAlreadyReconciled):
			respondWithError(w, http.StatusConflict, "Transaction is already settled")
		case errors.Is(err, apperrors.ErrConflictingSettlement):
			respondWithError(w, http.StatusConflict, "A selected candidate was settled by another transaction")
		case errors.Is(err, apperrors.ErrValidation):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}
