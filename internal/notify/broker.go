package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashita-ai/torii/internal/storage"
)

// Notification is one message relayed off a LISTEN channel. Payload is the
// raw JSON published by a Notifier.
type Notification struct {
	Channel string
	Payload string
}

// Broker fans out Postgres LISTEN/NOTIFY messages to subscribers.
// It runs a background goroutine that calls db.WaitForNotification in a loop
// and sends each message to all active subscriber channels.
type Broker struct {
	db     *storage.DB
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan Notification]struct{}
}

// NewBroker creates a broker. Call Start to begin listening.
func NewBroker(db *storage.DB, logger *slog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[chan Notification]struct{}),
	}
}

// Start begins listening on the nodes and proposals channels.
// It blocks, so call it in a goroutine. Returns when ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	for _, channel := range []string{storage.ChannelNodes, storage.ChannelProposals} {
		if err := b.db.Listen(ctx, channel); err != nil {
			b.logger.Error("broker: listen", "channel", channel, "error", err)
			return
		}
	}

	b.logger.Info("broker: listening for notifications",
		"channels", []string{storage.ChannelNodes, storage.ChannelProposals})

	for {
		channel, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // Shutting down.
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			continue
		}

		b.broadcast(Notification{Channel: channel, Payload: payload})
	}
}

// Subscribe returns a channel that receives relayed notifications.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan Notification {
	ch := make(chan Notification, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan Notification) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast sends a notification to all subscribers. Slow subscribers with
// a full buffer are skipped (their message is dropped) to prevent one slow
// consumer from blocking all others.
func (b *Broker) broadcast(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			// Subscriber buffer full, drop this message for them.
		}
	}
}
