package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concilia/internal/config"
	"concilia/internal/matching"
	"concilia/internal/models"
)

func sampleTx() *models.Transaction {
	return &models.Transaction{
		ID:              1,
		ExternalID:      "FIT100",
		Amount:          decimal.RequireFromString("320.00"),
		TransactionDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Description:     "PIX RECEBIDO",
	}
}

func sampleMatches() []matching.Match {
	return []matching.Match{
		{CandidateIDs: []int64{1}, Method: models.MethodFuzzyName, Confidence: 75},
		{CandidateIDs: []int64{2}, Method: models.MethodFuzzyName, Confidence: 72},
	}
}

func advisorFor(url string) Advisor {
	return New(config.AdvisorConfig{Enabled: true, URL: url, APIKey: "test", Model: "test-model"})
}

func TestDisabledKeepsOrder(t *testing.T) {
	matches := sampleMatches()
	got := Disabled{}.Rerank(context.Background(), sampleTx(), matches)
	assert.Equal(t, matches, got)
}

func TestNewReturnsDisabledWithoutURL(t *testing.T) {
	a := New(config.AdvisorConfig{Enabled: true})
	assert.IsType(t, Disabled{}, a)
}

func TestRerankAppliesModelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		reply := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"order": [1, 0]}`}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
	defer server.Close()

	got := advisorFor(server.URL).Rerank(context.Background(), sampleTx(), sampleMatches())
	require.Len(t, got, 2)
	assert.Equal(t, []int64{2}, got[0].CandidateIDs)
	assert.Equal(t, []int64{1}, got[1].CandidateIDs)
}

func TestRerankKeepsOrderOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	matches := sampleMatches()
	got := advisorFor(server.URL).Rerank(context.Background(), sampleTx(), matches)
	assert.Equal(t, matches, got)
}

func TestRerankRejectsInvalidPermutation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reply := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"order": [0, 0]}`}},
			},
		}
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer server.Close()

	matches := sampleMatches()
	got := advisorFor(server.URL).Rerank(context.Background(), sampleTx(), matches)
	assert.Equal(t, matches, got)
}

func TestRerankSkipsSingleSuggestion(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	single := sampleMatches()[:1]
	got := advisorFor(server.URL).Rerank(context.Background(), sampleTx(), single)
	assert.Equal(t, single, got)
	assert.False(t, called)
}
