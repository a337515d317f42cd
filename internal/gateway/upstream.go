// upstream.go - forwarding to the chat-completion provider.
//
// DESIGN: Two Upstream implementations share one interface: HTTPUpstream
// forwards to a real endpoint with per-attempt timeouts and bounded
// exponential backoff; Simulator synthesizes deterministic placeholder
// responses for local runs and tests. Retry policy: transport errors and
// 5xx are retried, 4xx are terminal.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/modelrelay/model-gateway/internal/config"
)

// Upstream produces a completion for a validated request.
type Upstream interface {
	Complete(ctx context.Context, req *ChatRequest, rawBody []byte) (*UpstreamResult, error)
}

// UpstreamResult is the provider's answer in the gateway's neutral shape.
type UpstreamResult struct {
	Content string
	Model   string
	Usage   Usage
}

// CredentialProvider supplies the outbound API key. Storage and retrieval
// live outside this package.
type CredentialProvider func() (string, error)

// HTTPUpstream forwards requests over HTTP with retry.
type HTTPUpstream struct {
	endpoint    string
	client      *http.Client
	credentials CredentialProvider
	cfg         config.UpstreamConfig
}

// NewHTTPUpstream creates a forwarding upstream.
func NewHTTPUpstream(cfg config.UpstreamConfig, creds CredentialProvider) *HTTPUpstream {
	return &HTTPUpstream{
		endpoint:    cfg.Endpoint,
		client:      &http.Client{},
		credentials: creds,
		cfg:         cfg,
	}
}

// Complete implements Upstream. Each attempt gets its own timeout; the
// retry schedule is exponential with a small fixed attempt budget.
func (u *HTTPUpstream) Complete(ctx context.Context, req *ChatRequest, rawBody []byte) (*UpstreamResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = u.cfg.BackoffInitial
	policy.MaxInterval = u.cfg.BackoffMax

	attempts := 0
	var lastStatus int

	operation := func() (*UpstreamResult, error) {
		attempts++
		result, status, err := u.attempt(ctx, rawBody)
		lastStatus = status
		if err == nil {
			return result, nil
		}
		// 4xx means the upstream understood and rejected the request;
		// retrying cannot help.
		if status >= 400 && status < 500 {
			return nil, backoff.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempts).Int("status", status).
			Msg("upstream attempt failed")
		return nil, err
	}

	result, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(u.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		return nil, &UpstreamError{StatusCode: lastStatus, Attempts: attempts, Err: err}
	}
	return result, nil
}

func (u *HTTPUpstream) attempt(ctx context.Context, rawBody []byte) (*UpstreamResult, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, u.endpoint, bytes.NewReader(rawBody))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if u.credentials != nil {
		key, err := u.credentials()
		if err != nil {
			return nil, 0, fmt.Errorf("resolve credentials: %w", err)
		}
		if key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxRequestBodySize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	return &UpstreamResult{
		Content: gjson.GetBytes(body, "content").String(),
		Model:   gjson.GetBytes(body, "model").String(),
		Usage: Usage{
			InputTokens:  gjson.GetBytes(body, "usage.input_tokens").Int(),
			OutputTokens: gjson.GetBytes(body, "usage.output_tokens").Int(),
		},
	}, resp.StatusCode, nil
}

// Simulator synthesizes deterministic placeholder completions. The same
// request always produces the same content and token counts, which keeps
// cache and pricing behavior reproducible without network I/O.
type Simulator struct{}

// NewSimulator creates a simulation upstream.
func NewSimulator() *Simulator { return &Simulator{} }

// Complete implements Upstream.
func (s *Simulator) Complete(_ context.Context, req *ChatRequest, _ []byte) (*UpstreamResult, error) {
	last := ""
	var inputTokens int64
	for _, m := range req.Messages {
		inputTokens += countTokens(m.Content)
		last = m.Content
	}
	if len(last) > 80 {
		last = last[:80]
	}
	content := fmt.Sprintf("Simulated %s response to: %s", req.Model, last)

	return &UpstreamResult{
		Content: content,
		Model:   req.Model,
		Usage: Usage{
			InputTokens:  inputTokens,
			OutputTokens: countTokens(content),
		},
	}, nil
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens counts BPE tokens, falling back to a bytes/4 estimate when
// the encoding is unavailable (offline environments).
func countTokens(text string) int64 {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Debug().Err(err).Msg("tiktoken unavailable, using byte estimate")
			return
		}
		encoding = enc
	})
	if encoding != nil {
		return int64(len(encoding.Encode(text, nil, nil)))
	}
	n := int64(len(strings.TrimSpace(text)) / config.TokenEstimateRatio)
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
