package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"folio/internal/apperr"
	"folio/internal/prompt"
)

const (
	DefaultURL     = "https://openrouter.ai/api/v1/chat/completions"
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

type Config struct {
	APIKey  string
	Model   string
	URL     string
	Referer string
	Title   string
	// Timeout bounds dialing, waiting for response headers and any silence
	// between two reads of the body.
	Timeout time.Duration
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = cfg.Timeout

	return &Client{cfg: cfg, http: &http.Client{Transport: transport}}
}

type completionRequest struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream returns a single-use sequence of content tokens. The request is
// sent when iteration starts. A failure is yielded once as ("", err) and
// ends the sequence; stopping the range loop closes the response body.
func (c *Client) Stream(ctx context.Context, messages []prompt.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		resp, err := c.send(reqCtx, messages)
		if err != nil {
			slog.ErrorContext(ctx, "failed to reach generation endpoint", "error", err)
			yield("", classify(ctx, err, false, apperr.KindUnavailable))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			slog.ErrorContext(ctx, "generation endpoint error", "status", resp.StatusCode, "body", string(body))
			yield("", apperr.Upstream(resp.StatusCode, fmt.Errorf("openrouter returned %d", resp.StatusCode)))
			return
		}

		var stalled atomic.Bool
		watchdog := time.AfterFunc(c.cfg.Timeout, func() {
			stalled.Store(true)
			cancel()
		})
		defer watchdog.Stop()

		reader := bufio.NewReader(resp.Body)
		for {
			watchdog.Reset(c.cfg.Timeout)
			line, readErr := reader.ReadString('\n')
			watchdog.Stop()

			token, done := parseLine(ctx, line)
			if done {
				return
			}
			if token != "" && !yield(token, nil) {
				return
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return
				}
				slog.ErrorContext(ctx, "generation stream interrupted", "error", readErr, "stalled", stalled.Load())
				yield("", classify(ctx, readErr, stalled.Load(), apperr.KindInternal))
				return
			}
		}
	}
}

func (c *Client) send(ctx context.Context, messages []prompt.Message) (*http.Response, error) {
	payload, err := json.Marshal(completionRequest{Model: c.cfg.Model, Messages: messages, Stream: true})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	return c.http.Do(req)
}

// parseLine extracts the token carried by one SSE line. Lines other than
// data frames, and frames that do not decode, carry nothing.
func parseLine(ctx context.Context, line string) (token string, done bool) {
	line = strings.TrimRight(line, "\r\n")
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}

	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return "", true
	}

	var chunk completionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		slog.WarnContext(ctx, "failed to parse stream frame", "frame", data, "error", err)
		return "", false
	}
	if len(chunk.Choices) == 0 {
		slog.WarnContext(ctx, "stream frame without choices", "frame", data)
		return "", false
	}
	return chunk.Choices[0].Delta.Content, false
}

// classify maps a transport error onto an error kind. Cancellation by the
// caller is passed through untouched. Anything that is not a timeout gets
// the fallback kind: Unavailable before the response arrives, Internal once
// the body is being read.
func classify(ctx context.Context, err error, stalled bool, fallback apperr.Kind) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}

	var netErr net.Error
	switch {
	case stalled, errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apperr.Wrap(apperr.KindTimeout, apperr.MsgTimeout, err)
	case fallback == apperr.KindUnavailable:
		return apperr.Wrap(apperr.KindUnavailable, apperr.MsgUnavailable, err)
	default:
		return apperr.Wrap(apperr.KindInternal, apperr.MsgInternal, err)
	}
}
