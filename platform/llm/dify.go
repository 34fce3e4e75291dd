// Package llm talks to the external answer-generation service, a Dify
// chat-messages endpoint backed by a knowledge base.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"knowledge_backend/config"
	"knowledge_backend/pkg/logging"
)

const errorBodyLimit = 4 << 10

// ErrIdleTimeout ends a stream that went quiet for longer than the timeout.
var ErrIdleTimeout = errors.New("llm stream idle timeout")

type Config struct {
	APIBase string
	APIKey  string
	// bounds the wait for response headers and, when streaming, every gap
	// between received lines
	Timeout time.Duration
}

type ChatRequest struct {
	Query          string
	User           string
	ConversationID *string
}

type ChatResponse struct {
	Answer         string
	ConversationID string
}

// StreamChunk is one provider event. Answer is cumulative, not a delta.
// NoAnswer marks events that carried no answer field at all, as opposed to
// an empty answer.
type StreamChunk struct {
	ConversationID string
	Answer         string
	NoAnswer       bool
}

type Client struct {
	apiBase string
	apiKey  string
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: cfg.Timeout,
				MaxIdleConnsPerHost:   16,
			},
		},
	}
}

func (c *Client) Configured() bool {
	return c.apiBase != "" && c.apiKey != ""
}

type chatPayload struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID *string        `json:"conversation_id"`
}

type chatEvent struct {
	Event          string  `json:"event"`
	Answer         *string `json:"answer"`
	ConversationID string  `json:"conversation_id"`
	Message        string  `json:"message"`
	Code           string  `json:"code"`
}

func (c *Client) post(ctx context.Context, req ChatRequest, mode string) (*http.Response, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("llm provider: %w", config.ErrNotConfigured)
	}
	payload, err := json.Marshal(chatPayload{
		Inputs:         map[string]any{},
		Query:          req.Query,
		ResponseMode:   mode,
		User:           req.User,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat-messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if mode == "streaming" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("llm call failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Chat performs one blocking round trip.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, req, "blocking")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ev chatEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	out := &ChatResponse{ConversationID: ev.ConversationID}
	if ev.Answer != nil {
		out.Answer = *ev.Answer
	}
	return out, nil
}

// Stream calls onChunk for every provider event carrying an answer or a
// conversation id, in arrival order. Unparsable lines are skipped. It
// returns when the provider ends the stream, ctx is cancelled, no line
// arrives within the timeout, or onChunk fails.
func (c *Client) Stream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	idle := time.AfterFunc(c.timeout, func() { cancel(ErrIdleTimeout) })
	defer idle.Stop()

	resp, err := c.post(ctx, req, "streaming")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = readSSE(resp.Body, func() { idle.Reset(c.timeout) }, func(event, data string) error {
		var ev chatEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			logging.Logger.Debug("skipping unparsable llm stream line", "error", err)
			return nil
		}
		if ev.Event == "error" || event == "error" {
			msg := ev.Message
			if msg == "" {
				msg = data
			}
			return fmt.Errorf("llm stream error: %s", msg)
		}
		if ev.Event == "message_end" {
			if ev.ConversationID != "" {
				if err := onChunk(StreamChunk{ConversationID: ev.ConversationID, NoAnswer: true}); err != nil {
					return err
				}
			}
			return errStreamDone
		}
		if ev.Answer == nil {
			if ev.ConversationID == "" {
				return nil
			}
			return onChunk(StreamChunk{ConversationID: ev.ConversationID, NoAnswer: true})
		}
		return onChunk(StreamChunk{ConversationID: ev.ConversationID, Answer: *ev.Answer})
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("llm stream interrupted: %w", context.Cause(ctx))
	}
	return err
}
