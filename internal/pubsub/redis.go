package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus fans payloads out across processes through redis pub/sub. A single
// subscription connection is shared by all local members: the bus subscribes a
// redis channel when its first local member joins and unsubscribes when the
// last one leaves, then relays every received payload to the local registry.
type RedisBus struct {
	rdb    *redis.Client
	sub    *redis.PubSub
	reg    *registry
	log    *zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a redis-backed bus and starts its dispatch loop.
func NewRedisBus(rdb *redis.Client, logger *zerolog.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBus{
		rdb:    rdb,
		sub:    rdb.Subscribe(ctx),
		reg:    newRegistry(),
		log:    logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.dispatchLoop(ctx)
	return b
}

func (b *RedisBus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	ch := b.sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.reg.dispatch(msg.Channel, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBus) Join(ctx context.Context, channel string, sub Subscriber) error {
	if first := b.reg.add(channel, sub); first {
		if err := b.sub.Subscribe(ctx, channel); err != nil {
			b.reg.remove(channel, sub)
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}
	return nil
}

func (b *RedisBus) Leave(ctx context.Context, channel string, sub Subscriber) error {
	if last := b.reg.remove(channel, sub); last {
		if err := b.sub.Unsubscribe(ctx, channel); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", channel, err)
		}
	}
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close stops the dispatch loop and tears down the subscription connection.
func (b *RedisBus) Close() error {
	b.cancel()
	err := b.sub.Close()
	<-b.done
	return err
}
