package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/inference-gateway/models"
	"github.com/upb/inference-gateway/services/providers"
)

const defaultBaseURL = "http://127.0.0.1:11434"

// Adapter speaks the Ollama generate API of the on-box open-weight
// runtime. It ignores credentials: the local provider needs none.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

// New creates the local runtime adapter. baseURL may be empty for the
// default loopback address.
func New(baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Name returns the provider name this adapter serves.
func (a *Adapter) Name() string {
	return models.ProviderLocal
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Invoke sends one prompt to the local runtime and returns the response
// content.
func (a *Adapter) Invoke(ctx context.Context, model, prompt, _ string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "failed to create request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(a.Name(), "failed to read response", httpResp.StatusCode, err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", providers.NewProviderError(a.Name(), "failed to unmarshal response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("unexpected status %d", httpResp.StatusCode)
		if parsed.Error != "" {
			message = parsed.Error
		}
		return "", providers.NewProviderError(a.Name(), message, httpResp.StatusCode, nil)
	}

	if parsed.Error != "" {
		return "", providers.NewProviderError(a.Name(), parsed.Error, httpResp.StatusCode, nil)
	}

	return parsed.Response, nil
}
