package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"knowledge_backend/models"
)

type StreamEventKind string

const (
	StreamContext StreamEventKind = "context"
	StreamMeta    StreamEventKind = "meta"
	StreamDelta   StreamEventKind = "delta"
	StreamDone    StreamEventKind = "done"
	StreamError   StreamEventKind = "error"
)

// StreamEvent is one frame of a streamed conversation. Data is the JSON
// payload of the frame.
type StreamEvent struct {
	Kind StreamEventKind
	Data any
}

type contextPayload struct {
	Contexts []models.KnowledgeContext `json:"contexts"`
}

type metaPayload struct {
	ConversationID string `json:"conversation_id"`
}

type deltaPayload struct {
	Text string `json:"text"`
}

type donePayload struct {
	OK bool `json:"ok"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func contextEvent(contexts []models.KnowledgeContext) StreamEvent {
	if contexts == nil {
		contexts = []models.KnowledgeContext{}
	}
	return StreamEvent{Kind: StreamContext, Data: contextPayload{Contexts: contexts}}
}

func metaEvent(conversationID string) StreamEvent {
	return StreamEvent{Kind: StreamMeta, Data: metaPayload{ConversationID: conversationID}}
}

func deltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: StreamDelta, Data: deltaPayload{Text: text}}
}

func doneEvent() StreamEvent {
	return StreamEvent{Kind: StreamDone, Data: donePayload{OK: true}}
}

func errorEvent(err error) StreamEvent {
	return StreamEvent{Kind: StreamError, Data: errorPayload{Message: err.Error()}}
}

// Terminal reports whether no frame follows this one.
func (e StreamEvent) Terminal() bool {
	return e.Kind == StreamDone || e.Kind == StreamError
}

// SSE renders the event as a server-sent events frame.
func (e StreamEvent) SSE() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind, err)
	}
	return []byte("event: " + string(e.Kind) + "\ndata: " + string(data) + "\n\n"), nil
}

// DeltaTracker turns a sequence of cumulative answers into increments.
// When an answer does not extend the previous one the whole answer is the
// increment.
type DeltaTracker struct {
	last string
}

func (t *DeltaTracker) Next(answer string) string {
	delta := answer
	if strings.HasPrefix(answer, t.last) {
		delta = answer[len(t.last):]
	}
	t.last = answer
	return delta
}
