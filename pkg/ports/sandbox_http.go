package ports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSandbox executes a candidate patch by POSTing it to an external
// sandbox execution service and decoding its JSON response as a
// SandboxResult. It is a concrete Sandbox implementation, never imported by
// the engine/session core — only cmd/selfhealctl wires one in, the same
// boundary OpenAIAdvisor draws for Advisor. Grounded on
// orchestration/executor.go's callComponentWithBody: POST the JSON body,
// read the full response regardless of status, decode on success.
type HTTPSandbox struct {
	url        string
	httpClient *http.Client
}

// NewHTTPSandbox creates a sandbox that posts to url.
func NewHTTPSandbox(url string) *HTTPSandbox {
	return &HTTPSandbox{url: url, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type sandboxExecuteRequest struct {
	PatchID      string `json:"patch_id"`
	Language     string `json:"language"`
	PatchedCode  string `json:"patched_code"`
	OriginalCode string `json:"original_code"`
}

// Execute implements Sandbox.
func (s *HTTPSandbox) Execute(ctx context.Context, patchID, language, patchedCode, originalCode string) (SandboxResult, error) {
	body, err := json.Marshal(sandboxExecuteRequest{
		PatchID:      patchID,
		Language:     language,
		PatchedCode:  patchedCode,
		OriginalCode: originalCode,
	})
	if err != nil {
		return SandboxResult{}, fmt.Errorf("http sandbox: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SandboxResult{}, fmt.Errorf("http sandbox: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SandboxResult{}, fmt.Errorf("http sandbox: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SandboxResult{}, fmt.Errorf("http sandbox: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return SandboxResult{}, fmt.Errorf("http sandbox: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result SandboxResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return SandboxResult{}, fmt.Errorf("http sandbox: decode response: %w", err)
	}
	return result, nil
}

var _ Sandbox = (*HTTPSandbox)(nil)
