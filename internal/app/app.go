package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/ingest"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// App runs the two long-lived halves of the process: the ingest consumer
// driving the aggregation pipeline and the HTTP server exposing it.
type App struct {
	log      logger.Logger
	httpSrv  HTTPServer
	consumer *ingest.Consumer

	cancel context.CancelFunc
}

func NewApp(log logger.Logger, httpSrv HTTPServer, consumer *ingest.Consumer) *App {
	return &App{log: log, httpSrv: httpSrv, consumer: consumer}
}

func (a *App) Start() error {
	a.log.Debug("App start begin...")

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.consumer.Start(ctx); err != nil {
		cancel()
		return err
	}

	go func() {
		if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("Start HTTP server is error=%v", err)
		}
	}()

	a.log.Info("App started")
	return nil
}

// Shutdown stops ingest first so no event is mid-flight while the stores
// are being torn down, then drains the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stop begin...")

	if a.cancel != nil {
		a.cancel()
	}
	a.consumer.Close()

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
