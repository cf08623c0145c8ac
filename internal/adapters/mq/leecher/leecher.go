// Package leecher listens to the Aquarium live stream and forwards the
// events worth syncing to the job store as aquarium.leech source events.
package leecher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/domain/dedupe"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

const (
	defaultReconnectDelay = 10 * time.Second
	defaultSender         = "aquarium-leecher"
)

// Source is the Aquarium side of the leecher.
type Source interface {
	SignIn(ctx context.Context, botKey, secret string) (string, error)
	Subscribe(ctx context.Context, topic string, fn aquarium.Handler) error
}

// Dispatcher stores forwarded events.
type Dispatcher interface {
	Dispatch(ctx context.Context, req queue.DispatchRequest) (string, error)
}

// Stats counts what happened to received events.
type Stats struct {
	Received   int64 `json:"received"`
	Filtered   int64 `json:"filtered"`
	Forwarded  int64 `json:"forwarded"`
	Duplicates int64 `json:"duplicates"`
	Dropped    int64 `json:"dropped"`
	Connected  bool  `json:"connected"`
}

// Leecher filters and forwards live events.
type Leecher struct {
	source Source
	jobs   Dispatcher
	dedupe dedupe.Deduper

	allowed map[string]struct{}
	ignored map[string]struct{}

	botKey         string
	secret         string
	sender         string
	reconnectDelay time.Duration

	logger logger.Logger

	connected  atomic.Bool
	received   atomic.Int64
	filtered   atomic.Int64
	forwarded  atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64

	shutdown chan struct{}
	once     sync.Once
}

// New creates a Leecher. Without WithAllowedTopics nothing is forwarded.
func New(source Source, jobs Dispatcher, opts ...Option) *Leecher {
	l := &Leecher{
		source:         source,
		jobs:           jobs,
		allowed:        map[string]struct{}{},
		ignored:        map[string]struct{}{},
		sender:         defaultSender,
		reconnectDelay: defaultReconnectDelay,
		logger:         logger.Get().Named("leecher"),
		shutdown:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dedupe == nil {
		l.dedupe = dedupe.NewInMemoryDeduper()
	}
	return l
}

// Allowed reports whether topic passes the filter and, if not, why.
func (l *Leecher) Allowed(topic string) (bool, string) {
	if _, ok := l.ignored[topic]; ok {
		return false, "ignored"
	}
	if _, ok := l.allowed[topic]; !ok {
		return false, "not_allowed"
	}
	return true, ""
}

// Handle filters one event and forwards it. It is the subscription callback.
func (l *Leecher) Handle(ctx context.Context, event model.SourceEvent) {
	l.received.Add(1)
	metrics.RecordEventReceived(event.Topic)

	if ok, reason := l.Allowed(event.Topic); !ok {
		l.filtered.Add(1)
		metrics.RecordEventFiltered(reason)
		l.logger.Debug(ctx, "event topic skipped", logger.String("topic", event.Topic), logger.String("reason", reason))
		return
	}
	if event.Key == "" {
		l.dropped.Add(1)
		metrics.RecordEventDropped()
		l.logger.Warn(ctx, "event without key dropped", logger.String("topic", event.Topic))
		return
	}
	if l.dedupe.SeenAndRecord(ctx, event.Key) {
		l.duplicates.Add(1)
		metrics.RecordEventDuplicate()
		return
	}

	id, err := l.jobs.Dispatch(ctx, queue.DispatchRequest{
		Topic:       model.TopicLeech,
		Hash:        event.Key,
		Sender:      l.sender,
		Project:     event.Project,
		Description: Description(event),
		Payload:     event,
	})
	switch {
	case errors.Is(err, queue.ErrDuplicateHash):
		l.duplicates.Add(1)
		metrics.RecordEventDuplicate()
	case err != nil:
		l.dedupe.Unrecord(ctx, event.Key)
		l.dropped.Add(1)
		metrics.RecordEventDropped()
		metrics.RecordErrorByComponent("leecher", "dispatch_error")
		l.logger.Error(ctx, "failed to forward event",
			logger.String("topic", event.Topic),
			logger.String("key", event.Key),
			logger.Error(err))
	default:
		l.forwarded.Add(1)
		metrics.RecordEventForwarded()
		l.logger.Info(ctx, "event forwarded",
			logger.String("topic", event.Topic),
			logger.String("key", event.Key),
			logger.String("id", id))
	}
}

// Description is the job description of a forwarded event.
func Description(event model.SourceEvent) string {
	return "Received " + event.Topic + " #" + event.Key
}

// Run signs in, subscribes to every topic and forwards events until ctx is
// done or Shutdown is called. Failures are retried after the reconnect
// delay.
func (l *Leecher) Run(ctx context.Context) error {
	if l.botKey == "" || l.secret == "" {
		return ErrMissingCredentials
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	l.logger.Info(ctx, "leecher started", logger.Int("allowed_topics", len(l.allowed)))
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.setConnected(ctx, false, nil)
			l.logger.Info(ctx, "leecher stopped")
			return nil
		}
		l.setConnected(ctx, false, err)

		select {
		case <-ctx.Done():
			l.logger.Info(ctx, "leecher stopped")
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Leecher) session(ctx context.Context) error {
	if _, err := l.source.SignIn(ctx, l.botKey, l.secret); err != nil {
		return err
	}
	l.setConnected(ctx, true, nil)
	return l.source.Subscribe(ctx, "*", l.Handle)
}

// setConnected logs only on transitions.
func (l *Leecher) setConnected(ctx context.Context, up bool, cause error) {
	if l.connected.Swap(up) == up {
		if !up && cause != nil {
			l.logger.Debug(ctx, "aquarium still unreachable", logger.Error(cause))
		}
		return
	}
	metrics.UpdateSourceConnected(up)
	if up {
		l.logger.Info(ctx, "connected to aquarium")
		return
	}
	if cause != nil {
		l.logger.Warn(ctx, "disconnected from aquarium", logger.Error(cause))
		return
	}
	l.logger.Info(ctx, "disconnected from aquarium")
}

// Shutdown stops Run. It is safe to call more than once.
func (l *Leecher) Shutdown(_ context.Context) error {
	l.once.Do(func() { close(l.shutdown) })
	return nil
}

// Connected reports whether the stream is up.
func (l *Leecher) Connected() bool { return l.connected.Load() }

// Stats returns a snapshot of the counters.
func (l *Leecher) Stats() Stats {
	return Stats{
		Received:   l.received.Load(),
		Filtered:   l.filtered.Load(),
		Forwarded:  l.forwarded.Load(),
		Duplicates: l.duplicates.Load(),
		Dropped:    l.dropped.Load(),
		Connected:  l.connected.Load(),
	}
}
