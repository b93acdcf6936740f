// Package advisor optionally re-ranks suggestion lists through an
// OpenAI-compatible chat endpoint. It only reorders what the matcher
// already produced; it never adds candidates, never changes
// confidences, and every failure degrades to the deterministic order.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"concilia/internal/config"
	"concilia/internal/matching"
	"concilia/internal/models"
)

type Advisor interface {
	Rerank(ctx context.Context, tx *models.Transaction, matches []matching.Match) []matching.Match
}

// Disabled is the no-op advisor used when no endpoint is configured.
type Disabled struct{}

func (Disabled) Rerank(_ context.Context, _ *models.Transaction, matches []matching.Match) []matching.Match {
	return matches
}

type HTTPAdvisor struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// New returns the advisor selected by cfg, Disabled unless enabled
// with a URL.
func New(cfg config.AdvisorConfig) Advisor {
	if !cfg.Enabled || cfg.URL == "" {
		return Disabled{}
	}
	return &HTTPAdvisor{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type rankingReply struct {
	Order []int `json:"order"`
}

const systemPrompt = "You rank settlement suggestions for a bank statement entry. " +
	"Reply with JSON {\"order\": [...]} listing the suggestion indexes from most to least likely. " +
	"Use every index exactly once."

func (a *HTTPAdvisor) Rerank(ctx context.Context, tx *models.Transaction, matches []matching.Match) []matching.Match {
	if len(matches) < 2 {
		return matches
	}

	order, err := a.requestOrder(ctx, tx, matches)
	if err != nil {
		slog.Warn("Advisor unavailable, keeping deterministic order",
			"external_id", tx.ExternalID,
			"error", err)
		return matches
	}
	if !validPermutation(order, len(matches)) {
		slog.Warn("Advisor returned an invalid ranking, keeping deterministic order",
			"external_id", tx.ExternalID)
		return matches
	}

	reordered := make([]matching.Match, 0, len(matches))
	for _, idx := range order {
		reordered = append(reordered, matches[idx])
	}
	return reordered
}

func (a *HTTPAdvisor) requestOrder(ctx context.Context, tx *models.Transaction, matches []matching.Match) ([]int, error) {
	payload := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(tx, matches)},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, err
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("advisor returned no choices")
	}

	var reply rankingReply
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &reply); err != nil {
		return nil, err
	}
	return reply.Order, nil
}

func buildPrompt(tx *models.Transaction, matches []matching.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statement entry: amount %s, date %s, description %q\n\nSuggestions:\n",
		tx.Amount.StringFixed(2),
		tx.TransactionDate.Format("2006-01-02"),
		tx.Description)
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. method=%s confidence=%.0f criteria=%s candidates:",
			i, m.Method, m.Confidence, strings.Join(m.Criteria, ","))
		for _, c := range m.Candidates {
			fmt.Fprintf(&b, " [due %s amount %s doc %s]",
				c.DueDate.Format("2006-01-02"),
				c.Amount.StringFixed(2),
				c.DocumentNumber)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func validPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}
