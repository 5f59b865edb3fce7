package cache

import (
	"context"
	"log/slog"
)

// EventType names a cache health event.
type EventType string

// Event types emitted by the cache and the layers built on it.
const (
	EventHit                 EventType = "hit"
	EventMiss                EventType = "miss"
	EventExpired             EventType = "expired"
	EventSet                 EventType = "set"
	EventDelete              EventType = "delete"
	EventCleared             EventType = "cleared"
	EventInvalidated         EventType = "invalidated"
	EventStorageFault        EventType = "storage_fault"
	EventRevalidateStarted   EventType = "revalidate_started"
	EventRevalidateSkipped   EventType = "revalidate_skipped"
	EventRevalidateSucceeded EventType = "revalidate_succeeded"
	EventRevalidateFailed    EventType = "revalidate_failed"
	EventFallback            EventType = "fallback"
	EventSweep               EventType = "sweep"
	EventSweepFailed         EventType = "sweep_failed"
)

// Event describes something that happened inside the cache layer.
// Fields that do not apply to the event type are left empty.
type Event struct {
	Err     error
	Type    EventType
	Backend Kind
	Key     string
	Op      string
	Count   int
}

// Observer receives cache events. Implementations must be fast and safe
// for concurrent use: they run on the caller's goroutine.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

// Observe calls f(ctx, ev).
func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

// NopObserver returns an Observer that discards every event.
func NopObserver() Observer {
	return nopObserver{}
}

// MultiObserver fans every event out to all non-nil observers.
func MultiObserver(observers ...Observer) Observer {
	clean := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			clean = append(clean, o)
		}
	}
	return ObserverFunc(func(ctx context.Context, ev Event) {
		for _, o := range clean {
			o.Observe(ctx, ev)
		}
	})
}

// LogObserver writes events to l. Faults and failed background work are
// logged at warn level, everything else at debug.
func LogObserver(l *slog.Logger) Observer {
	if l == nil {
		return NopObserver()
	}
	return ObserverFunc(func(ctx context.Context, ev Event) {
		attrs := []slog.Attr{slog.String("event", string(ev.Type))}
		if ev.Backend != "" {
			attrs = append(attrs, slog.String("backend", ev.Backend.String()))
		}
		if ev.Key != "" {
			attrs = append(attrs, slog.String("key", ev.Key))
		}
		if ev.Op != "" {
			attrs = append(attrs, slog.String("op", ev.Op))
		}
		if ev.Count > 0 {
			attrs = append(attrs, slog.Int("count", ev.Count))
		}
		if ev.Err != nil {
			attrs = append(attrs, slog.Any("error", ev.Err))
		}

		level := slog.LevelDebug
		switch ev.Type {
		case EventStorageFault, EventRevalidateFailed, EventSweepFailed:
			level = slog.LevelWarn
		}
		l.LogAttrs(ctx, level, "cache event", attrs...)
	})
}
