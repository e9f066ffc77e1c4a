package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// SSEGenerator streams generations from an HTTP endpoint that responds with
// newline-delimited records (bare JSONL or SSE "data:" frames). Each line is
// forwarded as one raw chunk; decoding into events happens downstream.
type SSEGenerator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// NewSSEGenerator creates a generator for the given endpoint. The API key is
// optional; when set it is sent as a bearer token.
func NewSSEGenerator(endpoint, apiKey string) *SSEGenerator {
	return &SSEGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		// No overall timeout: generations stream for as long as the
		// model produces tokens. Cancellation comes from the context.
		httpClient: &http.Client{Timeout: 0},
	}
}

// Stream issues the generation request and forwards response lines as chunks.
func (g *SSEGenerator) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		body, err := json.Marshal(generateRequest{Prompt: prompt, Stream: true})
		if err != nil {
			errs <- fmt.Errorf("failed to encode generation request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("failed to build generation request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				// User cancelled; not a transport failure
				return
			}
			errs <- fmt.Errorf("generation request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- fmt.Errorf("generation endpoint returned status %d", resp.StatusCode)
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				select {
				case chunks <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("generation stream read failed: %w", err)
				return
			}
		}
	}()

	return chunks, errs
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (g *SSEGenerator) WithHTTPClient(c *http.Client) *SSEGenerator {
	g.httpClient = c
	return g
}
