// Package bus is the explicit in-process event bus that replaces ambient
// host-platform signaling. Connection-state transitions and feed updates are
// published here so UI-level consumers can observe them without subscribing
// to the push channel's registry.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/reliefops/notify-agent/internal/domain/model"
	"github.com/reliefops/notify-agent/internal/transport/push"
)

const (
	TopicConnState   = "conn.state"
	TopicFeedUpdated = "feed.updated"
)

// StatePayload is the serialized form of a connection-state announcement.
type StatePayload struct {
	State string `json:"state"`
	At    int64  `json:"at"` // epoch millis
}

// Interface guard
var _ push.Announcer = (*Bus)(nil)

// Bus wraps an in-memory gochannel pub/sub.
type Bus struct {
	ch     *gochannel.GoChannel
	logger *slog.Logger
}

func New(logger *slog.Logger) *Bus {
	return &Bus{
		ch: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, watermill.NewSlogLogger(logger)),
		logger: logger,
	}
}

// AnnounceState publishes a connection-state transition.
func (b *Bus) AnnounceState(state model.ConnState) {
	payload, err := json.Marshal(StatePayload{
		State: state.String(),
		At:    time.Now().UnixMilli(),
	})
	if err != nil {
		b.logger.Error("bus: marshal state payload", "err", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.ch.Publish(TopicConnState, msg); err != nil {
		b.logger.Warn("bus: publish conn state", "err", err)
	}
}

// AnnounceFeedUpdated signals that the aggregator's working set changed.
func (b *Bus) AnnounceFeedUpdated() {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	if err := b.ch.Publish(TopicFeedUpdated, msg); err != nil {
		b.logger.Warn("bus: publish feed update", "err", err)
	}
}

// Subscribe returns a channel of messages for the given topic. Consumers must
// Ack every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.ch.Subscribe(ctx, topic)
}

func (b *Bus) Close() error {
	return b.ch.Close()
}
