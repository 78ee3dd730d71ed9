package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/inference-gateway/services/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter speaks the OpenAI-compatible chat completions wire format. It
// also serves the other hosted tiers that expose the same shape (Mistral,
// the private pool) under their own name and base URL.
type Adapter struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// New creates an adapter for one OpenAI-compatible provider. baseURL may
// be empty for the OpenAI default.
func New(name, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		name:    name,
		baseURL: baseURL,
		// Per-call timeouts come from the invoke deadline, not the client.
		httpClient: &http.Client{},
	}
}

// Name returns the provider name this adapter serves.
func (a *Adapter) Name() string {
	return a.name
}

// chatRequest is the provider wire format for a completion request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the provider response the gateway reads.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke sends one prompt to the named model and returns the response
// content, normalizing every failure mode into a ProviderError.
func (a *Adapter) Invoke(ctx context.Context, model, prompt, credential string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", providers.NewProviderError(a.name, "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", providers.NewProviderError(a.name, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+credential)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", providers.NewProviderError(a.name, "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", providers.NewProviderError(a.name, "failed to read response", httpResp.StatusCode, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return "", providers.NewProviderError(a.name,
				fmt.Sprintf("unexpected status %d", httpResp.StatusCode), httpResp.StatusCode, nil)
		}
		return "", providers.NewProviderError(a.name, "failed to unmarshal response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("unexpected status %d", httpResp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return "", providers.NewProviderError(a.name, message, httpResp.StatusCode, nil)
	}

	if len(parsed.Choices) == 0 {
		return "", providers.NewProviderError(a.name, "response contained no choices", httpResp.StatusCode, nil)
	}

	return parsed.Choices[0].Message.Content, nil
}
