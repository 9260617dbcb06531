package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/core/domain"
	"github.com/quartzlabs/econd/internal/port"
)

// Bus broadcasts balance changes on one named Redis channel and invalidates
// the local cache on receipt, so instances sharing a backend never serve a
// stale balance for long. It is a best-effort cache hint, not a consistency
// mechanism: every failure is swallowed and the backend stays the source of
// truth. Self-published messages come back through the subscription and are
// handled idempotently.
type Bus struct {
	client      *redis.Client
	channel     string
	invalidator port.CacheInvalidator
	notifier    port.SessionNotifier // optional
	log         *logrus.Logger

	sub  *redis.PubSub
	done chan struct{}
}

func New(client *redis.Client, channel string, invalidator port.CacheInvalidator, notifier port.SessionNotifier, log *logrus.Logger) *Bus {
	return &Bus{
		client:      client,
		channel:     channel,
		invalidator: invalidator,
		notifier:    notifier,
		log:         log,
		done:        make(chan struct{}),
	}
}

// Start subscribes and begins draining messages. Reconnection and backoff
// are the client's concern.
func (b *Bus) Start(ctx context.Context) {
	b.sub = b.client.Subscribe(ctx, b.channel)
	go func() {
		defer close(b.done)
		for msg := range b.sub.Channel() {
			b.handleMessage(msg.Payload)
		}
	}()
}

// PublishTransaction serializes the update and publishes it. Failures are
// logged and swallowed; the caller's mutation already succeeded.
func (b *Bus) PublishTransaction(ctx context.Context, update domain.BalanceUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		b.log.WithError(err).Warn("bus: encode failed")
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.WithError(err).Debug("bus: publish failed")
	}
}

// Close unsubscribes and waits for the drain goroutine. The Redis client
// itself is owned by the caller.
func (b *Bus) Close() error {
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	<-b.done
	return err
}

func (b *Bus) handleMessage(payload string) {
	var update domain.BalanceUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		b.log.WithError(err).WithField("payload", payload).Warn("bus: malformed message")
		return
	}

	b.invalidator.InvalidateAccount(update.ID)

	if b.notifier != nil && update.Message != "" {
		b.notifier.NotifySession(update.ID, update.Message)
	}

	b.log.WithFields(logrus.Fields{
		"account": update.ID,
		"balance": update.Balance,
	}).Debug("bus: cache invalidated")
}
