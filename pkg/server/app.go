package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PatternScope/pkg/config"
	xhttp "PatternScope/pkg/http"
	pkgkafka "PatternScope/pkg/kafka"
	applogger "PatternScope/pkg/logger"
)

// App encapsulates the application lifecycle: the HTTP API and, when Kafka is
// enabled, the analysis request consumer.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
}

// New creates a new App. consumer may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
	}
}

// Run starts the application and blocks until interrupted or the HTTP server fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with caller-controlled cancellation.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	errCh := a.httpServer.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			a.log.Error("http server error", applogger.Error(err))
			runErr = err
		}
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
