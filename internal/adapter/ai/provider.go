// Package ai provides ports.AIProvider implementations: an HTTP-backed
// structured-generation client (grounded on the Provider/Engine interface
// split found in the pack's sdek-cli reference), a deterministic in-memory
// fake for tests, and a Redis-backed response cache wrapper.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

// HTTPProvider implements ports.AIProvider against an OpenAI-compatible
// structured-output endpoint. Temperature is always 0 for determinism per
// the AI Provider Port contract. Transport/rate-limit errors are retried
// with exponential backoff; schema-invalid output is never retried.
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	provider   string
	logger     ports.Logger
}

type Option func(*HTTPProvider)

func NewHTTPProvider(provider, baseURL, apiKey, model string, timeout time.Duration, maxRetries int, logger ports.Logger) *HTTPProvider {
	return &HTTPProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
		provider:   provider,
		logger:     logger,
	}
}

func (p *HTTPProvider) Provider() string { return p.provider }

func (p *HTTPProvider) Health(ctx context.Context) error {
	if p.apiKey == "" {
		return domain.NewConfigMissingError("ai.health", fmt.Errorf("no API key configured for provider %s", p.provider))
	}
	return nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content interface{} `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *HTTPProvider) GenerateStructured(ctx context.Context, systemPrompt, userContext string, into interface{}) error {
	req := chatRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContext},
		},
	}
	return p.call(ctx, req, into)
}

func (p *HTTPProvider) GenerateVision(ctx context.Context, imageBytes []byte, prompt string, into interface{}) error {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	req := chatRequest{
		Model:       p.model,
		Temperature: 0,
		Messages: []chatMessage{
			{Role: "system", Content: "Respond with strict JSON matching the requested schema only."},
			{Role: "user", Content: []map[string]interface{}{
				{"type": "text", "text": prompt},
				{"type": "image_url", "image_url": map[string]string{"url": "data:image/png;base64," + encoded}},
			}},
		},
	}
	return p.call(ctx, req, into)
}

func (p *HTTPProvider) call(ctx context.Context, req chatRequest, into interface{}) error {
	if p.apiKey == "" {
		return domain.NewConfigMissingError("ai.generate", fmt.Errorf("no API key configured for provider %s", p.provider))
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		content, err := p.doRequest(ctx, req)
		if err == nil {
			if unmarshalErr := json.Unmarshal([]byte(content), into); unmarshalErr != nil {
				return domain.NewAIIncompleteError("ai.generate", fmt.Errorf("response did not match schema: %w", unmarshalErr))
			}
			if v, ok := into.(interface{ Validate() error }); ok {
				if verr := v.Validate(); verr != nil {
					return domain.NewAIIncompleteError("ai.generate", fmt.Errorf("response failed schema validation: %w", verr))
				}
			}
			return nil
		}

		lastErr = err
		if !domain.Retryable(err) {
			return err
		}
		p.logger.Warn("ai call retrying", "attempt", attempt+1, "error", err)
	}
	return lastErr
}

func (p *HTTPProvider) doRequest(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.NewValidationError("ai.marshal_request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewIOFailureError("ai.build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.NewAITimeoutError("ai.request", err)
		}
		return "", domain.NewAITimeoutError("ai.request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewAITimeoutError("ai.read_response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", domain.NewAIRateLimitedError("ai.request", fmt.Errorf("rate limited: %s", string(raw)))
	case resp.StatusCode >= 500:
		return "", domain.NewAITimeoutError("ai.request", fmt.Errorf("server error %d: %s", resp.StatusCode, string(raw)))
	case resp.StatusCode >= 400:
		return "", domain.NewAIRefusalError("ai.request", fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domain.NewAIIncompleteError("ai.parse_envelope", err)
	}
	if parsed.Error != nil {
		return "", domain.NewAIRefusalError("ai.request", fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", domain.NewAIIncompleteError("ai.request", fmt.Errorf("empty completion"))
	}
	return parsed.Choices[0].Message.Content, nil
}

var _ ports.AIProvider = (*HTTPProvider)(nil)
