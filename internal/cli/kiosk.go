package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"exitscan/docs"
	"exitscan/internal/camera"
	"exitscan/internal/clock"
	"exitscan/internal/config"
	handlers "exitscan/internal/http/handler"
	"exitscan/internal/http/middleware"
	"exitscan/internal/metrics"
	"exitscan/internal/offline"
	tracing "exitscan/internal/otel"
	"exitscan/internal/present"
	"exitscan/internal/scan"
	"exitscan/internal/storage"
	"exitscan/internal/verify"
)

const shutdownTimeout = 5 * time.Second

// openStore selects the cache backend.
func openStore(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return storage.NewMemory(), nil
	case "minio":
		return storage.NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func openCache(ctx context.Context, cfg *config.AppConfig, col *metrics.Collector) (*offline.Cache, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	m, err := offline.LoadManifest(cfg.Cache.ManifestPath)
	if err != nil {
		return nil, err
	}
	return offline.New(store, m, offline.Options{
		Origin:  cfg.Scan.Origin,
		Network: otelhttp.NewTransport(http.DefaultTransport),
		Metrics: col,
	})
}

func newVerifier(cfg *config.AppConfig, col *metrics.Collector) *verify.Client {
	return verify.NewClient(verify.Options{
		Origin:    cfg.Scan.Origin,
		Path:      cfg.Scan.ScanPath,
		CSRFToken: cfg.Scan.CSRFToken,
		Timeout:   cfg.Scan.VerifyTimeout,
		Metrics:   col,
	})
}

func newWorkflow(cfg *config.AppConfig, cam camera.Capability, v verify.Verifier, board *present.Board, col *metrics.Collector) *scan.Workflow {
	clk := clock.Real()
	player := present.NewCommandPlayer(cfg.Audio.Command, cfg.Audio.SuccessCue, cfg.Audio.ErrorCue)
	return scan.New(cam, v, present.NewPresenter(board, player, clk), scan.NewDoorSelector(cfg.Scan.Door), scan.Options{
		Capture: camera.Capture{
			FPS:       cfg.Camera.FPS,
			BoxWidth:  cfg.Camera.BoxSize,
			BoxHeight: cfg.Camera.BoxSize,
		},
		ResumeDelay:     cfg.Scan.ResumeDelay,
		DisplayDuration: cfg.Scan.DisplayDuration,
		Clock:           clk,
		Metrics:         col,
	})
}

// newServer builds the fiber app. reg is nil when metrics are disabled.
func newServer(cfg *config.AppConfig, deps handlers.Deps, reg *prometheus.Registry) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(cfg.Location()))

	if reg != nil {
		prom, err := middleware.NewPrometheusMiddleware(reg)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		app.Use(prom.Handler())
		deps.Metrics = reg
	}

	// Swagger UI with dynamic host and scheme. Registered before the asset
	// catch-all.
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, deps)
	return app, nil
}

// runKiosk runs the kiosk until SIGINT or SIGTERM. Camera and cache failures
// are reported but do not stop the process: the HTTP surface stays up so the
// operator can see the fault and reload.
func runKiosk(ctx context.Context, cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "exitscan")
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	var reg *prometheus.Registry
	var col *metrics.Collector
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if col, err = metrics.NewCollector(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	cache, err := openCache(ctx, cfg, col)
	if err != nil {
		return err
	}
	if err := cache.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Offline cache unavailable for this version")
	}

	board := present.NewBoard()
	wf := newWorkflow(cfg, camera.NewLineReader(cfg.Camera.DeviceGlob), newVerifier(cfg, col), board, col)
	if err := wf.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Scanning disabled until reload")
	}

	app, err := newServer(cfg, handlers.Deps{
		Kiosk:   wf,
		Display: board,
		Cache:   cache,
		Assets:  cache.Transport(),
		Mounts:  cache,
		Origin:  cfg.Scan.Origin,
	}, reg)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("origin", cfg.Scan.Origin).Msg("Kiosk listening")
		serveErr <- app.Listen(addr)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal, stopping gracefully")
	case err := <-serveErr:
		if err != nil {
			errs = append(errs, fmt.Errorf("serve %s: %w", addr, err))
		}
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := wf.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("camera stop: %w", err))
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	log.Info().Msg("Kiosk stopped")
	return errors.Join(errs...)
}
