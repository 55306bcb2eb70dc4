package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"macrobench/internal/errors"
)

// maxCompletionTokens bounds every structured completion request.
const maxCompletionTokens = 1024

// systemPrompt keeps backends aligned on JSON-only output.
const systemPrompt = "You are a careful forecasting assistant. Respond with a single JSON object and nothing else."

// httpBackend carries the transport shared by every provider backend. One
// rate limiter per provider keeps concurrent per-tick fan-outs polite.
type httpBackend struct {
	provider string
	model    string
	baseURL  string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

func (b *httpBackend) post(ctx context.Context, path string, body any, headers map[string]string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, errors.ProviderError(b.provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("marshal request: %w", err))
	}
	url := strings.TrimRight(b.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("read response: %w", err))
	}
	return respRaw, b.statusError(resp.StatusCode, respRaw)
}

func (b *httpBackend) statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.AuthError(fmt.Sprintf("%s authentication rejected (http %d)", b.provider, status))
	case status == http.StatusTooManyRequests:
		return errors.New(errors.CodeRateLimited, fmt.Sprintf("%s rate limit hit (http 429): %s", b.provider, truncate(body)))
	default:
		return errors.ProviderError(b.provider, fmt.Errorf("http %d: %s", status, truncate(body)))
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// openAIBackend speaks the chat completions API; it also serves
// OpenAI-compatible providers such as OpenRouter.
type openAIBackend struct {
	httpBackend
}

func (b *openAIBackend) Invoke(ctx context.Context, prompt string) (json.RawMessage, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	body := struct {
		Model     string    `json:"model"`
		Messages  []message `json:"messages"`
		MaxTokens int       `json:"max_tokens,omitempty"`
	}{
		Model: b.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxCompletionTokens,
	}

	respRaw, err := b.post(ctx, "/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + b.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("response missing choices"))
	}
	return ExtractJSONObject(decoded.Choices[0].Message.Content)
}

// anthropicBackend speaks the messages API.
type anthropicBackend struct {
	httpBackend
}

func (b *anthropicBackend) Invoke(ctx context.Context, prompt string) (json.RawMessage, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	body := struct {
		Model     string    `json:"model"`
		System    string    `json:"system"`
		MaxTokens int       `json:"max_tokens"`
		Messages  []message `json:"messages"`
	}{
		Model:     b.model,
		System:    systemPrompt,
		MaxTokens: maxCompletionTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}

	respRaw, err := b.post(ctx, "/v1/messages", body, map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("unmarshal response: %w", err))
	}
	if len(decoded.Content) == 0 {
		return nil, errors.ProviderError(b.provider, fmt.Errorf("response missing content"))
	}
	return ExtractJSONObject(decoded.Content[0].Text)
}
