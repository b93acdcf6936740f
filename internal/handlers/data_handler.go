package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"concilia/internal/apperrors"
	"concilia/internal/services"
)

type DataHandler struct {
	ingestionService *services.IngestionService
}

func NewDataHandler(ingestionService *services.IngestionService) *DataHandler {
	return &DataHandler{ingestionService: ingestionService}
}

func (h *DataHandler) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Transactions []services.TransactionInput `json:"transactions"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(request.Transactions) == 0 {
		respondWithError(w, http.StatusBadRequest, "No transactions provided")
		return
	}

	result, err := h.ingestionService.IngestTransactions(r.Context(), request.Transactions)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	respondWithJSON(w, status, result)
}

func (h *DataHandler) ImportOFX(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	result, err := h.ingestionService.IngestOFX(r.Context(), r.Body)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
