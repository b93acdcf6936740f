package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"concilia/internal/services"
)

func SetupRouter(reconciliationService *services.ReconciliationService, ingestionService *services.IngestionService) *mux.Router {
	router := mux.NewRouter()

	reconciliationHandler := NewReconciliationHandler(reconciliationService)
	dataHandler := NewDataHandler(ingestionService)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.Use(loggingMiddleware)
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/transactions", dataHandler.IngestTransactions).Methods(http.MethodPost)
	api.HandleFunc("/transactions/unmatched", reconciliationHandler.ListUnmatched).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{external_id}/confirm", reconciliationHandler.ConfirmTransaction).Methods(http.MethodPost)
	api.HandleFunc("/imports/ofx", dataHandler.ImportOFX).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations", reconciliationHandler.StartReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations/{batch_id}", reconciliationHandler.GetBatchStatus).Methods(http.MethodGet)

	router.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)

	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Error marshaling JSON response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
