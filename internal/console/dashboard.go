package console

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/reliefops/notify-agent/internal/adapter/bus"
	"github.com/reliefops/notify-agent/internal/domain/model"
	"github.com/reliefops/notify-agent/internal/service"
	"github.com/reliefops/notify-agent/internal/transport/push"
)

// Dashboard renders the feed, counters, toasts, and the tri-state connection
// indicator in the terminal. Keys: q quit, r reconnect, a mark all read.
type Dashboard struct {
	agg    *service.Aggregator
	conn   *push.Conn
	bus    *bus.Bus
	logger *slog.Logger
}

func NewDashboard(agg *service.Aggregator, conn *push.Conn, b *bus.Bus, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		agg:    agg,
		conn:   conn,
		bus:    b,
		logger: logger,
	}
}

// Run blocks until the user quits or the context is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("console: init terminal ui: %w", err)
	}
	defer ui.Close()

	header := widgets.NewParagraph()
	header.Title = "notify-agent"

	feed := widgets.NewList()
	feed.Title = "Notifications"
	feed.WrapText = false

	toasts := widgets.NewList()
	toasts.Title = "Toasts"

	render := func() {
		w, h := ui.TerminalDimensions()

		state := d.conn.State()
		header.Text = fmt.Sprintf("connection: %s   unread: %d   priority: %d   [q quit, r reconnect, a read all]",
			state.String(), d.agg.UnreadCount(), d.agg.PriorityCount())
		header.BorderStyle.Fg = stateColor(state)
		header.SetRect(0, 0, w, 3)

		feed.Rows = d.feedRows()
		feed.SetRect(0, 3, w, h-7)

		toasts.Rows = d.toastRows()
		toasts.SetRect(0, h-7, w, h)

		ui.Render(header, feed, toasts)
	}
	render()

	stateCh, err := d.bus.Subscribe(ctx, bus.TopicConnState)
	if err != nil {
		return fmt.Errorf("console: subscribe conn state: %w", err)
	}
	feedCh, err := d.bus.Subscribe(ctx, bus.TopicFeedUpdated)
	if err != nil {
		return fmt.Errorf("console: subscribe feed updates: %w", err)
	}

	events := ui.PollEvents()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "r":
				go func() {
					if err := d.conn.Reconnect(context.Background()); err != nil {
						d.logger.Warn("console: manual reconnect failed", "err", err)
					}
				}()
			case "a":
				d.agg.MarkAllRead()
				render()
			case "<Resize>":
				render()
			}

		case msg, ok := <-stateCh:
			if !ok {
				return nil
			}
			msg.Ack()
			render()

		case msg, ok := <-feedCh:
			if !ok {
				return nil
			}
			msg.Ack()
			render()

		case <-ticker.C:
			// Toast TTLs expire without a bus signal; keep the view fresh.
			render()
		}
	}
}

func (d *Dashboard) feedRows() []string {
	merged := d.agg.Merged()
	rows := make([]string, 0, len(merged))
	for _, it := range merged {
		label := it.Title
		if it.Kind == model.KindWelfare && it.UserName != "" {
			label = fmt.Sprintf("%s (%s)", it.Title, it.UserName)
		}
		rows = append(rows, fmt.Sprintf("%s [%s|%s] %s",
			unreadLabel(d.agg.IsRead(it.ID)), it.Kind.String(), string(it.Priority), label))
	}
	if len(rows) == 0 {
		rows = append(rows, "no notifications")
	}
	return rows
}

func (d *Dashboard) toastRows() []string {
	live := d.agg.Toasts()
	rows := make([]string, 0, len(live))
	for _, t := range live {
		rows = append(rows, fmt.Sprintf("[%s] %s", string(t.Priority), t.Title))
	}
	if len(rows) == 0 {
		rows = append(rows, "-")
	}
	return rows
}

func stateColor(state model.ConnState) ui.Color {
	switch state {
	case model.StateConnected:
		return ui.ColorGreen
	case model.StateConnecting:
		return ui.ColorYellow
	default:
		return ui.ColorRed
	}
}
