package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reliefops/notify-agent/config"
	"github.com/reliefops/notify-agent/internal/console"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

const (
	ServiceName      = "notify-agent"
	ServiceNamespace = "reliefops"
)

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Real-time notification client for the ReliefOps platform",
		Commands: []*cli.Command{
			agentCmd(),
		},
	}

	return app.Run(os.Args)
}

func agentCmd() *cli.Command {
	return &cli.Command{
		Name:    "agent",
		Aliases: []string{"a"},
		Usage:   "Run the notification agent",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ui",
				Usage: "Render the terminal dashboard",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			var dash *console.Dashboard
			var extras []fx.Option
			if c.Bool("ui") {
				extras = append(extras, fx.Populate(&dash))
			}

			app := NewApp(cfg, extras...)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			if dash != nil {
				ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				err := dash.Run(ctx)
				cancel()
				if err != nil {
					slog.Error("dashboard failed", "err", err)
				}
			} else {
				stop := make(chan os.Signal, 1)
				signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
				<-stop
			}

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}
