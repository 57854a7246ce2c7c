package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-tutor/pkg/gateway/server"
)

// liveCloseWait bounds how long shutdown waits for live sessions after they
// have been force closed.
const liveCloseWait = 2 * time.Second

type tutorDeps struct {
	loadConfig    func() (config.Config, error)
	buildBackends func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error)
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
}

func defaultTutorDeps() tutorDeps {
	return tutorDeps{
		loadConfig:    config.LoadFromEnv,
		buildBackends: buildBackends,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps tutorDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildBackends == nil {
		return errors.New("missing buildBackends dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}

	backends, closeBackends, err := deps.buildBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build backends: %w", err)
	}
	if closeBackends != nil {
		defer closeBackends()
	}

	gw := gatewayserver.New(cfg, backends, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting tutor server",
		"addr", cfg.Addr,
		"answer_provider", cfg.AnswerProvider,
		"stt_provider", cfg.STTProvider,
		"search_provider", cfg.SearchProvider,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Shutdown does not wait for hijacked live connections, so they drain
	// alongside it under the same grace period.
	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		gw.Drain(graceCtx, liveCloseWait)
		return nil
	})
	g.Go(func() error {
		if err := httpSrv.Shutdown(graceCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("tutor server stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps tutorDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "vai-tutor: %v\n", err)
		return 1
	}

	if err := runServer(ctx, nil, deps); err != nil {
		fmt.Fprintf(stderr, "vai-tutor: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultTutorDeps()))
}
