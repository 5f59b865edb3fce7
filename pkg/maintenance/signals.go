package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultSignalChannel is the Redis Pub/Sub channel carrying invalidation signals.
const DefaultSignalChannel = "stash:cache:signals"

// SignalKind names what a signal asks the scheduler to do.
type SignalKind string

const (
	// SignalTag invalidates every entry carrying Value as a dependency tag.
	SignalTag SignalKind = "tag"
	// SignalKey deletes the entry stored under Value from the memory and
	// persistent backends. Signals carry no session scope, so session
	// copies of the key are left to expire.
	SignalKey SignalKind = "key"
	// SignalHidden clears the memory backend.
	SignalHidden SignalKind = "hidden"
)

// Signal is an invalidation request from outside the process.
type Signal struct {
	Kind  SignalKind
	Value string
}

// String encodes the signal as a Pub/Sub payload: "tag:<tag>", "key:<key>", or "hidden".
func (s Signal) String() string {
	if s.Kind == SignalHidden {
		return string(SignalHidden)
	}
	return string(s.Kind) + ":" + s.Value
}

// ParseSignal decodes a Pub/Sub payload.
func ParseSignal(payload string) (Signal, error) {
	if payload == string(SignalHidden) {
		return Signal{Kind: SignalHidden}, nil
	}

	kind, value, ok := strings.Cut(payload, ":")
	if !ok || value == "" {
		return Signal{}, fmt.Errorf("%w: %q", ErrInvalidSignal, payload)
	}

	switch SignalKind(kind) {
	case SignalTag, SignalKey:
		return Signal{Kind: SignalKind(kind), Value: value}, nil
	}
	return Signal{}, fmt.Errorf("%w: %q", ErrInvalidSignal, payload)
}

// Signals delivers invalidation signals between processes.
type Signals interface {
	// Subscribe calls handle for every received signal until ctx is done.
	Subscribe(ctx context.Context, handle func(context.Context, Signal)) error

	// Publish sends a signal to every subscriber.
	Publish(ctx context.Context, s Signal) error
}

// RedisSignals carries signals over Redis Pub/Sub so that every instance
// sharing the Redis server drops the same entries.
type RedisSignals struct {
	client  redis.UniversalClient
	channel string
	onError func(payload string, err error)
}

// NewRedisSignals creates a Redis-backed signal bus on channel
// (DefaultSignalChannel when empty).
func NewRedisSignals(client redis.UniversalClient, channel string) *RedisSignals {
	if channel == "" {
		channel = DefaultSignalChannel
	}
	return &RedisSignals{client: client, channel: channel}
}

// OnInvalidPayload registers a callback for payloads that fail to parse.
func (r *RedisSignals) OnInvalidPayload(fn func(payload string, err error)) {
	r.onError = fn
}

// Subscribe listens on the channel. It blocks until ctx is cancelled.
func (r *RedisSignals) Subscribe(ctx context.Context, handle func(context.Context, Signal)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so publishes right after
	// Subscribe returns control are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("maintenance: subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s, err := ParseSignal(msg.Payload)
			if err != nil {
				if r.onError != nil {
					r.onError(msg.Payload, err)
				}
				continue
			}
			handle(ctx, s)
		}
	}
}

// Publish sends s on the channel.
func (r *RedisSignals) Publish(ctx context.Context, s Signal) error {
	return r.client.Publish(ctx, r.channel, s.String()).Err()
}

// LocalSignals is an in-process signal bus for single-instance deployments.
type LocalSignals struct {
	subs map[int]localSub
	next int
	mu   sync.Mutex
}

type localSub struct {
	ch   chan Signal
	done chan struct{}
}

// NewLocalSignals creates an empty in-process bus.
func NewLocalSignals() *LocalSignals {
	return &LocalSignals{subs: make(map[int]localSub)}
}

// Subscribe delivers signals to handle until ctx is cancelled.
func (l *LocalSignals) Subscribe(ctx context.Context, handle func(context.Context, Signal)) error {
	sub := localSub{ch: make(chan Signal), done: make(chan struct{})}

	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = sub
	l.mu.Unlock()

	defer func() {
		close(sub.done)
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-sub.ch:
			handle(ctx, s)
		}
	}
}

// Publish delivers s to every current subscriber and returns once each
// has received it.
func (l *LocalSignals) Publish(ctx context.Context, s Signal) error {
	l.mu.Lock()
	subs := make([]localSub, 0, len(l.subs))
	for _, sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- s:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions.
func (l *LocalSignals) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

var (
	_ Signals = (*RedisSignals)(nil)
	_ Signals = (*LocalSignals)(nil)
)
