// Package app wires the configured backends into a ready session
// service. Both the control API and the CLI start from here.
package app

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/cache"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/config"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/downloader"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/events"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/metrics"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/session"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/settings"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/storage"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/tools"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/tracing"
	"github.com/therealutkarshpriyadarshi/hdmsp/internal/webhook"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Tools    *tools.Locator
	YtDlp    *downloader.YtDlp
	Cache    *cache.Cache
	Storage  *storage.Storage
	Session  *session.Service
	Settings settings.Store

	closers []io.Closer
}

// New builds the App. Redis, object storage, AMQP, webhooks and tracing
// are optional: a backend that is disabled or unreachable is logged and left
// out, the core keeps working without it.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	tracer, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	} else {
		opentracing.SetGlobalTracer(tracer)
		a.closers = append(a.closers, closer)
	}

	a.Tools = tools.NewLocator(cfg.Tools)
	a.YtDlp = downloader.NewYtDlp(a.Tools, cfg.Download, logger)

	opts := session.Options{
		Logger:      logger,
		OutputDir:   cfg.Download.OutputDir,
		MetadataTTL: cfg.Redis.MetadataTTL,
		LockTTL:     cfg.Redis.LockTTL,
	}

	if cfg.Redis.Enabled {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
		} else {
			a.Cache = c
			opts.Cache = c
			a.closers = append(a.closers, c)
			logger.WithField("addr", cfg.Redis.Host).Info("Redis cache connected")
		}
	}

	if cfg.Storage.Enabled && cfg.Download.ArchiveFinished {
		stor, err := storage.New(ctx, cfg.Storage, logger)
		if err != nil {
			logger.WithError(err).Warn("Object storage unavailable, finished files will not be archived")
		} else {
			a.Storage = stor
			opts.Archiver = stor
			logger.WithField("bucket", cfg.Storage.BucketName).Info("Archiving finished downloads")
		}
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events)
		if err != nil {
			logger.WithError(err).Warn("Event publisher unavailable, job events stay local")
		} else {
			opts.Publishers = append(opts.Publishers, pub)
			a.closers = append(a.closers, pub)
			logger.WithField("exchange", cfg.Events.Exchange).Info("Publishing job events")
		}
	}

	if len(cfg.Webhook.URLs) > 0 {
		notifier := webhook.NewNotifier(cfg.Webhook, logger)
		opts.Publishers = append(opts.Publishers, notifier)
		a.closers = append(a.closers, notifier)
		logger.WithField("urls", len(cfg.Webhook.URLs)).Info("Posting job events to webhooks")
	}

	store, err := a.openSettings()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Settings = store

	a.Session = session.NewService(a.YtDlp, a.YtDlp, opts)
	return a, nil
}

// openSettings picks the settings backend. The Redis backend falls back
// to the file when Redis is not connected.
func (a *App) openSettings() (settings.Store, error) {
	if a.Config.Settings.Backend == "redis" {
		if a.Cache != nil {
			return settings.NewRedisStore(a.Cache), nil
		}
		a.Logger.Warn("Settings backend is redis but Redis is not connected, using the settings file")
	}

	path := a.Config.Settings.Path
	if path == "" {
		def, err := settings.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	return settings.NewFileStore(path, a.Logger), nil
}

// CheckTools probes both tools and exports the result as gauges.
func (a *App) CheckTools(ctx context.Context) models.ToolStatus {
	status := a.Tools.CheckAll(ctx)
	metrics.UpdateToolAvailability(tools.YtDlp, status.YtDlp)
	metrics.UpdateToolAvailability(tools.FFmpeg, status.FFmpeg)
	return status
}

// Close stops the session and releases the backends in reverse order.
func (a *App) Close() {
	if a.Session != nil {
		a.Session.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close resource")
		}
	}
}
