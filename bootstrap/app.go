package bootstrap

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"knowledge_backend/config"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/platform/queue"
)

type App struct {
	Cfg            *config.Config
	Infrastructure *Infrastructure
	Repositories   *Repositories
	Services       *Services
	Handlers       *Handlers
	Workers        *queue.WorkerPool

	stopWorkers context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Cfg: cfg}
	infra, err := NewInfrastructure(cfg)
	if err != nil {
		logging.Logger.Error("fail NewInfrastructure", "error", err)
		return nil, err
	}
	app.Infrastructure = infra

	// repos
	repos := NewRepositories(infra.DB)
	app.Repositories = repos

	// services
	services := NewServices(cfg, repos, infra)
	app.Services = services

	handlers := NewHandlers(services, infra)
	app.Handlers = handlers

	// ingestion workers
	app.Workers = queue.NewWorkerPool(infra.Queue, services.IngestionService.Ingest, cfg.WorkerConcurrency)
	return app, nil
}

// StartWorkers launches the ingestion pool. It runs until Shutdown.
func (a *App) StartWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWorkers = cancel
	a.Workers.Start(ctx)
}

// Shutdown stops the workers and the HTTP server concurrently, then closes
// the infrastructure once nothing uses it.
func (a *App) Shutdown(ctx context.Context, stopServer func(context.Context) error) error {
	if a == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if stopServer != nil {
		g.Go(func() error { return stopServer(gctx) })
	}
	if a.stopWorkers != nil {
		g.Go(func() error {
			a.stopWorkers()
			done := make(chan struct{})
			go func() {
				a.Workers.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return errors.New("ingestion workers did not stop in time")
			}
		})
	}
	err := g.Wait()

	if a.Infrastructure != nil {
		err = errors.Join(err, a.Infrastructure.Shutdown())
	}
	return err
}
