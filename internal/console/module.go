package console

import (
	"log/slog"

	"github.com/reliefops/notify-agent/config"
	"github.com/reliefops/notify-agent/internal/service"
	"github.com/reliefops/notify-agent/internal/transport/push"
	"go.uber.org/fx"
)

var Module = fx.Module("console",
	fx.Provide(
		func(cfg *config.Config, agg *service.Aggregator, conn *push.Conn, logger *slog.Logger) *Server {
			return NewServer(cfg.Console.Addr, agg, conn, logger)
		},
		NewDashboard,
	),
)
