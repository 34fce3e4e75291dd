package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"knowledge_backend/middleware"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/events"
	"knowledge_backend/services"
)

type WSHandler struct {
	eventPublisher events.Publisher
	knowledge      *services.KnowledgeService
}

func NewWSHandler(eventPublisher events.Publisher, knowledge *services.KnowledgeService) *WSHandler {
	return &WSHandler{eventPublisher: eventPublisher, knowledge: knowledge}
}

// WebSocketUpgrade checks the request is an upgrade and that the caller
// owns the document before the connection is accepted.
func (h *WSHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.NewError(fiber.StatusUpgradeRequired, "Not a websocket request")
	}
	userID := middleware.UserID(c)
	if _, err := h.knowledge.Get(c.UserContext(), userID, c.Params("id")); err != nil {
		return err
	}
	c.Locals("ws_user_id", userID)
	return c.Next()
}

func (h *WSHandler) HandleDocumentEvents(c *websocket.Conn) {
	docID := c.Params("id")
	userID, _ := c.Locals("ws_user_id").(string)

	logging.Logger.Info("WebSocket connected", "docID", docID, "userID", userID)

	// cancelled when the client goes away or this handler returns
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventChan, err := h.eventPublisher.SubscribeDocumentEvents(ctx)
	if err != nil {
		logging.Logger.Error("Failed to subscribe to events", "error", err)
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"error":"Failed to subscribe"}`))
		return
	}

	if err := c.WriteJSON(fiber.Map{
		"type":    "connected",
		"message": "WebSocket connected successfully",
		"doc_id":  docID,
	}); err != nil {
		return
	}

	// reader loop only detects the close frame
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event.DocID != docID || event.UserID != userID {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Logger.Error("Failed to send WebSocket message", "error", err)
				return
			}
			logging.Logger.Debug("Event sent to client", "type", event.Type, "docID", event.DocID)
		case <-ctx.Done():
			return
		}
	}
}
