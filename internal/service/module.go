package service

import (
	"log/slog"

	"github.com/reliefops/notify-agent/config"
	"github.com/reliefops/notify-agent/internal/adapter/bus"
	"github.com/reliefops/notify-agent/internal/adapter/rest"
	"github.com/reliefops/notify-agent/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"feed",

	fx.Provide(
		func(cfg *config.Config) *ToastRack {
			return NewToastRack(cfg.Feed.ToastTTL)
		},
		func(cfg *config.Config, logger *slog.Logger) Notifier {
			if cfg.Feed.NativeNotify {
				return &LogNotifier{Logger: logger}
			}
			return NoopNotifier{}
		},
		func(cfg *config.Config, logger *slog.Logger) *store.ReadState {
			return store.Load(cfg.ReadState.Path, logger)
		},
		func(api rest.API, read *store.ReadState, toasts *ToastRack, notifier Notifier, b *bus.Bus, logger *slog.Logger) *Aggregator {
			return NewAggregator(api, read, toasts, notifier, b, logger)
		},
		func(agg *Aggregator, cfg *config.Config, logger *slog.Logger) *Poller {
			return NewPoller(agg, cfg.Feed.RefreshInterval, logger)
		},
	),
)
