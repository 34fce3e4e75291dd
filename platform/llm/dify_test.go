package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge_backend/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIBase: srv.URL + "/v1/", APIKey: "secret", Timeout: 2 * time.Second})
}

func TestClientNotConfigured(t *testing.T) {
	c := NewClient(Config{APIBase: "http://localhost"})
	_, err := c.Chat(context.Background(), ChatRequest{Query: "q"})
	assert.ErrorIs(t, err, config.ErrNotConfigured)
	err = c.Stream(context.Background(), ChatRequest{Query: "q"}, func(StreamChunk) error { return nil })
	assert.ErrorIs(t, err, config.ErrNotConfigured)
}

func TestChatBlocking(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"answer":"forty-two","conversation_id":"c1"}`)
	})

	resp, err := c.Chat(context.Background(), ChatRequest{Query: "question:q", User: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "forty-two", resp.Answer)
	assert.Equal(t, "c1", resp.ConversationID)

	assert.Equal(t, "blocking", got["response_mode"])
	assert.Equal(t, "question:q", got["query"])
	assert.Equal(t, "u1", got["user"])
	assert.Nil(t, got["conversation_id"])
	assert.Equal(t, map[string]any{}, got["inputs"])
}

func TestStreamParsesCumulativeAnswers(t *testing.T) {
	var payload map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"conversation_id\":\"c9\",\"answer\":\"Hi\"}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"conversation_id\":\"c9\",\"answer\":\"Hi there\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"ignored\"}\n\n")
	})

	conv := "c9"
	var chunks []StreamChunk
	err := c.Stream(context.Background(), ChatRequest{Query: "q", User: "u1", ConversationID: &conv}, func(ch StreamChunk) error {
		chunks = append(chunks, ch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Hi", chunks[0].Answer)
	assert.Equal(t, "Hi there", chunks[1].Answer)
	assert.Equal(t, "c9", chunks[1].ConversationID)
	assert.Equal(t, "streaming", payload["response_mode"])
	assert.Equal(t, "c9", payload["conversation_id"])
}

func TestStreamStopsAtMessageEnd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"a\"}\n")
		fmt.Fprint(w, "data: {\"event\":\"message_end\",\"conversation_id\":\"c2\"}\n")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"late\"}\n")
	})

	var chunks []StreamChunk
	require.NoError(t, c.Stream(context.Background(), ChatRequest{Query: "q"}, func(ch StreamChunk) error {
		chunks = append(chunks, ch)
		return nil
	}))
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Answer)
	assert.Equal(t, "c2", chunks[1].ConversationID)
	assert.True(t, chunks[1].NoAnswer)
}

func TestStreamKeepsEmptyAnswers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"Hi\"}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"\"}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"workflow_started\",\"conversation_id\":\"c3\"}\n\n")
		fmt.Fprint(w, "data: {\"event\":\"node_started\"}\n\n")
	})

	var chunks []StreamChunk
	require.NoError(t, c.Stream(context.Background(), ChatRequest{Query: "q"}, func(ch StreamChunk) error {
		chunks = append(chunks, ch)
		return nil
	}))
	require.Len(t, chunks, 3)
	assert.Equal(t, StreamChunk{Answer: "Hi"}, chunks[0])
	assert.Equal(t, StreamChunk{Answer: ""}, chunks[1])
	assert.Equal(t, StreamChunk{ConversationID: "c3", NoAnswer: true}, chunks[2])
}

func TestStreamProviderErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"bad key"}`)
		})
		err := c.Stream(context.Background(), ChatRequest{Query: "q"}, func(StreamChunk) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
		assert.Contains(t, err.Error(), "bad key")
	})

	t.Run("error event", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"event\":\"error\",\"message\":\"quota exceeded\"}\n\n")
		})
		err := c.Stream(context.Background(), ChatRequest{Query: "q"}, func(StreamChunk) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("callback error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"answer\":\"x\"}\n\n")
		})
		stop := fmt.Errorf("client gone")
		err := c.Stream(context.Background(), ChatRequest{Query: "q"}, func(StreamChunk) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestStreamIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"answer\":\"a\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{APIBase: srv.URL, APIKey: "k", Timeout: 100 * time.Millisecond})
	var got []string
	err := c.Stream(context.Background(), ChatRequest{Query: "q"}, func(ch StreamChunk) error {
		got = append(got, ch.Answer)
		return nil
	})
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.Equal(t, []string{"a"}, got)
}

func TestReadSSEEventNames(t *testing.T) {
	in := "event: meta\ndata: {\"a\":1}\n\ndata: {\"b\":2}\r\n\r\n"
	var events, data []string
	err := readSSE(strings.NewReader(in), nil, func(event, d string) error {
		events = append(events, event)
		data = append(data, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"meta", ""}, events)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, data)
}
