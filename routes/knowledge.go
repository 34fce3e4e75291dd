package routes

import (
	"github.com/gofiber/fiber/v2"

	"knowledge_backend/handlers"
	"knowledge_backend/middleware"
)

const APIPrefix = "/api/v1/knowledge-base"

func RegisterKnowledgeRoutes(app *fiber.App, handler *handlers.KnowledgeHandler) {
	kb := app.Group(APIPrefix, middleware.RequireUser())

	kb.Post("/documents", handler.Upload)
	kb.Get("/documents", handler.List)
	kb.Get("/documents/:id", handler.Get)
	kb.Get("/documents/:id/file", handler.Download)
	kb.Patch("/documents/:id/group", handler.UpdateGroup)
	kb.Post("/documents/:id/reingest", handler.Reingest)
	kb.Delete("/documents/:id", handler.Delete)

	kb.Post("/query", handler.Query)
	kb.Post("/conversation/stream", handler.ConversationStream)
}

func RegisterHealthRoutes(app *fiber.App, handler *handlers.HealthHandler) {
	app.Get("/healthz", handler.Health)
}
