package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/reliefops/notify-agent/config"
	"github.com/reliefops/notify-agent/internal/adapter/bus"
	"github.com/reliefops/notify-agent/internal/adapter/rest"
	"github.com/reliefops/notify-agent/internal/console"
	"github.com/reliefops/notify-agent/internal/service"
	"github.com/reliefops/notify-agent/internal/transport/push"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config, extras ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			bus.New,
			ProvideRESTClient,
			ProvideConn,
		),
		service.Module,
		console.Module,
		fx.Invoke(registerLifecycle),
	}

	return fx.New(append(opts, extras...)...)
}

func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler).With("service", ServiceName)
	slog.SetDefault(logger)
	return logger
}

func ProvideRESTClient(cfg *config.Config, logger *slog.Logger) rest.API {
	return rest.NewClient(cfg.API.BaseURL, cfg.Auth.Token, cfg.API.Timeout, logger)
}

func ProvideConn(cfg *config.Config, b *bus.Bus, logger *slog.Logger) *push.Conn {
	return push.NewConn(logger,
		push.WithEndpoint(cfg.Push.PushURL),
		push.WithConnectTimeout(cfg.Push.ConnectTimeout),
		push.WithKeepAlive(cfg.Push.PingInterval, cfg.Push.PongTimeout),
		push.WithReconnectPolicy(cfg.Push.ReconnectInterval, cfg.Push.MaxReconnects),
		push.WithAnnouncer(b),
	)
}

func registerLifecycle(
	lc fx.Lifecycle,
	cfg *config.Config,
	conn *push.Conn,
	agg *service.Aggregator,
	poller *service.Poller,
	toasts *service.ToastRack,
	srv *console.Server,
	b *bus.Bus,
	logger *slog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Auth.Token == "" {
				return errors.New("auth token is required (set NOTIFY_AUTH_TOKEN)")
			}

			agg.Attach(conn)

			// A failed initial dial is not fatal: the REST poller keeps the
			// feed populated and reconnection stays available.
			if err := conn.Connect(ctx, cfg.Auth.Token); err != nil {
				logger.Warn("initial push connect failed, running on REST only", "err", err)
			}

			poller.Start()
			srv.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("console shutdown failed", "err", err)
			}
			poller.Stop()
			conn.Disconnect()
			toasts.Stop()
			return b.Close()
		},
	})
}
