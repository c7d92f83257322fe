package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agrisense/crop-advisory-service/internal/observability"
)

// ErrUnavailable wraps any failure to reach or initialize the local model.
// Callers degrade to an undetermined outcome; the flow never aborts on it.
var ErrUnavailable = errors.New("model unavailable")

// Params are the fixed sampling parameters for one completion call.
type Params struct {
	MaxTokens     int
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	Stop          []string
}

// Client is the minimal surface the advisory generators need.
type Client interface {
	Complete(ctx context.Context, kind, prompt string, p Params) (string, error)
}

// LlamaClient talks to a locally hosted llama.cpp completion server. The host
// model is assumed single-request, so every invocation holds a process-wide
// mutex; the readiness probe runs lazily on first use and is retried on the
// next call if it failed.
type LlamaClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client

	mu    sync.Mutex // serializes readiness probe and completion calls
	ready bool
}

func NewLlamaClient(baseURL string, timeout time.Duration) *LlamaClient {
	return &LlamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type completionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	RepeatPenalty float64  `json:"repeat_penalty"`
	Stop          []string `json:"stop,omitempty"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Complete sends one prompt and returns the generated text. kind labels the
// invocation for metrics (price, combined, recommend).
func (c *LlamaClient) Complete(ctx context.Context, kind, prompt string, p Params) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		if err := c.probe(ctx); err != nil {
			observability.ModelInvocationsTotal.WithLabelValues(kind, "unavailable").Inc()
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.ready = true
	}

	start := time.Now()
	text, err := c.complete(ctx, prompt, p)
	observability.ModelInvocationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ModelInvocationsTotal.WithLabelValues(kind, "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	observability.ModelInvocationsTotal.WithLabelValues(kind, "success").Inc()
	return text, nil
}

// probe checks the server's health endpoint once. Held under mu.
func (c *LlamaClient) probe(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *LlamaClient) complete(ctx context.Context, prompt string, p Params) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(completionRequest{
		Prompt:        prompt,
		NPredict:      p.MaxTokens,
		Temperature:   p.Temperature,
		TopP:          p.TopP,
		RepeatPenalty: p.RepeatPenalty,
		Stop:          p.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, "POST", c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion failed: HTTP %d", resp.StatusCode)
	}

	var apiResp completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	return strings.TrimSpace(apiResp.Content), nil
}
