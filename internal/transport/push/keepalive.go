package push

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/reliefops/notify-agent/internal/domain/model"
)

// keepalive runs the application-level ping/pong exchange for one transport.
// Every pingInterval it sends a ping; pongTimeout later a one-shot check
// verifies a pong arrived since the ping was sent, and forces the transport
// closed when it did not. The forced close surfaces as a read error, which
// routes through the normal reconnection path.
func (c *Conn) keepalive(tr Transport, stop chan struct{}) {
	ticker := time.NewTicker(c.opts.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			sentAt := time.Now()
			if err := c.Send(model.EventPing, model.PingData{Timestamp: sentAt.UnixMilli()}); err != nil {
				continue
			}

			time.AfterFunc(c.opts.pongTimeout, func() {
				select {
				case <-stop:
					// Connection already torn down; the check must not act.
					return
				default:
				}

				if c.lastPongAt.Load() < sentAt.UnixNano() {
					c.logger.Warn("push: pong deadline missed, forcing close",
						"pong_timeout_ms", c.opts.pongTimeout.Milliseconds())
					_ = tr.Close(websocket.CloseAbnormalClosure, "pong timeout")
				}
			})
		}
	}
}
