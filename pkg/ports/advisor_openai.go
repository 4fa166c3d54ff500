package ports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/itsneelabh/selfheal/internal/logging"
)

// OpenAIAdvisor consults the OpenAI chat completions endpoint for a patch
// proposal. It is a concrete Advisor implementation, not a dependency of the
// engine or session core — only cmd/selfhealctl wires it in. Grounded on
// ai/client.go's OpenAIClient: a hand-rolled net/http POST, no SDK.
type OpenAIAdvisor struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      logging.Logger
}

// AdvisorOption configures an OpenAIAdvisor at construction.
type AdvisorOption func(*OpenAIAdvisor)

// WithAdvisorModel overrides the default "gpt-4" chat model.
func WithAdvisorModel(model string) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.model = model }
}

// WithAdvisorTemperature overrides the default 0.3 sampling temperature. A
// patch advisor favors low-temperature, conservative completions over
// creative ones.
func WithAdvisorTemperature(t float64) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.temperature = t }
}

// WithAdvisorMaxTokens overrides the default 1000 completion token budget.
func WithAdvisorMaxTokens(n int) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.maxTokens = n }
}

// WithAdvisorBaseURL overrides the default "https://api.openai.com/v1"
// endpoint, for pointing at a compatible proxy.
func WithAdvisorBaseURL(url string) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.baseURL = url }
}

// WithAdvisorHTTPClient overrides the default 30s-timeout client.
func WithAdvisorHTTPClient(c *http.Client) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.httpClient = c }
}

// WithAdvisorLogger overrides the default no-op logger.
func WithAdvisorLogger(l logging.Logger) AdvisorOption {
	return func(o *OpenAIAdvisor) { o.logger = l }
}

// NewOpenAIAdvisor creates an OpenAI advisor. An empty apiKey falls back to
// the OPENAI_API_KEY environment variable.
func NewOpenAIAdvisor(apiKey string, opts ...AdvisorOption) *OpenAIAdvisor {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	o := &OpenAIAdvisor{
		apiKey:      apiKey,
		baseURL:     "https://api.openai.com/v1",
		model:       "gpt-4",
		temperature: 0.3,
		maxTokens:   1000,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

const advisorSystemPrompt = "You are a patch advisor. Given a failing patch, " +
	"its original code, and the error it produced, respond with ONLY a " +
	"single fenced code block containing a corrected version of the patch. " +
	"Do not explain your reasoning."

// Consult implements Advisor by turning req into a single prompt and posting
// it to the chat completions endpoint.
func (o *OpenAIAdvisor) Consult(ctx context.Context, req ConsultRequest) (AdvisorResponse, error) {
	if o.apiKey == "" {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: API key not configured")
	}

	reqBody := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "system", "content": advisorSystemPrompt},
			{"role": "user", "content": buildAdvisorPrompt(req)},
		},
		"temperature": o.temperature,
		"max_tokens":  o.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		o.logger.Warn("openai advisor consult failed", map[string]interface{}{
			"status": resp.StatusCode, "body": string(body),
		})
		return AdvisorResponse{}, fmt.Errorf("openai advisor: API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return AdvisorResponse{}, fmt.Errorf("openai advisor: no choices in response")
	}

	return AdvisorResponse{Text: parsed.Choices[0].Message.Content}, nil
}

// buildAdvisorPrompt renders a ConsultRequest into the single user-turn
// prompt the chat completions API expects.
func buildAdvisorPrompt(req ConsultRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\n", req.Language)
	fmt.Fprintf(&b, "Error:\n%s\n\n", req.ErrorMessage)
	fmt.Fprintf(&b, "Original code:\n```\n%s\n```\n\n", req.OriginalCode)
	fmt.Fprintf(&b, "Last attempted patch:\n```\n%s\n```\n", req.LastPatch)
	if len(req.SimilarOutcomes) > 0 {
		b.WriteString("\nSimilar past outcomes:\n")
		for _, s := range req.SimilarOutcomes {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

var _ Advisor = (*OpenAIAdvisor)(nil)
