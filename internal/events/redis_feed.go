package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the subset of the redis client used by the feed.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisFeed fans dispatcher events out to per-ticket redis channels so other
// processes can follow a ticket.
type RedisFeed struct {
	client Publisher
	prefix string
	logger *zap.Logger
}

// NewRedisFeed builds a feed publishing to "<prefix>:<ticket_id>".
func NewRedisFeed(client Publisher, prefix string, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "support:tickets"
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

// Channel returns the redis channel for a ticket.
func (f *RedisFeed) Channel(ticketID string) string {
	return fmt.Sprintf("%s:%s", f.prefix, ticketID)
}

// Attach subscribes the feed to every event of the dispatcher.
func (f *RedisFeed) Attach(d Dispatcher) {
	d.SubscribeAll(f.handle)
}

func (f *RedisFeed) handle(ctx context.Context, event Event) error {
	if event.TicketID == "" {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(event.TicketID), body).Err(); err != nil {
		f.logger.Warn("redis feed publish failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}
