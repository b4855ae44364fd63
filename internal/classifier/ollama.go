package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datamind/dispatch/internal/circuitbreaker"
)

// OllamaClient speaks the /api/chat protocol of an Ollama-compatible SLM
// backend. One client is shared by the intent and complexity classifiers;
// a circuit breaker keeps a dead backend from eating the full per-call
// timeout on every request.
type OllamaClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewOllamaClient creates a client with the given per-call timeout.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("ollama")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
	Messages []chatMessage `json:"messages"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// maxQueryChars caps how much of the query goes to the SLM prompt.
const maxQueryChars = 2000

// Chat sends a system+user prompt pair at temperature 0 and returns the
// raw assistant content.
func (c *OllamaClient) Chat(ctx context.Context, model, systemPrompt, query string) (string, error) {
	if len(query) > maxQueryChars {
		query = query[:maxQueryChars]
	}

	body, err := json.Marshal(chatRequest{
		Model:   model,
		Stream:  false,
		Options: chatOptions{Temperature: 0.0, NumPredict: 128},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Query: " + query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var content string
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("chat call failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("chat call returned %d", resp.StatusCode)
		}

		var cr chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return fmt.Errorf("decode chat response: %w", err)
		}
		content = cr.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Reachable probes the backend's /api/tags endpoint with a short budget.
// Used by the readiness handler.
func (c *OllamaClient) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// extractJSON returns the first balanced {...} substring of an SLM reply.
// Replies often wrap the JSON in markdown fences or prose.
func extractJSON(content string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range content {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return content[start : i+1], nil
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", fmt.Errorf("no JSON object in response: %.200s", content)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
