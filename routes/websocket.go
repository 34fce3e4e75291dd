package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"knowledge_backend/handlers"
	"knowledge_backend/middleware"
)

func SetupWebSocketRoutes(app *fiber.App, wsHandler *handlers.WSHandler) {
	ws := app.Group(APIPrefix+"/ws", middleware.RequireUser())

	ws.Use("/documents/:id", wsHandler.WebSocketUpgrade)
	ws.Get("/documents/:id", websocket.New(wsHandler.HandleDocumentEvents))
}
