package bootstrap

import (
	"context"

	"knowledge_backend/handlers"
)

type Handlers struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	WSHandler        *handlers.WSHandler
	HealthHandler    *handlers.HealthHandler
}

func NewHandlers(services *Services, infra *Infrastructure) *Handlers {
	res := &Handlers{}
	res.KnowledgeHandler = handlers.NewKnowledgeHandler(services.KnowledgeService, services.RetrievalService)
	res.WSHandler = handlers.NewWSHandler(infra.EventPublisher, services.KnowledgeService)

	checks := map[string]handlers.Pinger{
		"database": handlers.PingFunc(func(context.Context) error { return infra.DB.Ping() }),
	}
	if infra.Redis != nil {
		checks["redis"] = infra.Redis
	}
	res.HealthHandler = handlers.NewHealthHandler(checks)
	return res
}
