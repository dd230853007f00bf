// Package notify carries state change events between statekeep components and,
// through NATS, between processes on the same machine so that long-running
// readers can drop cached documents as soon as another process commits.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
)

// Event kinds.
const (
	KindStateCommitted  = "state.committed"
	KindHistoryRecorded = "history.recorded"
	KindBackupCompleted = "backup.completed"
)

// Event describes one completed mutation.
type Event struct {
	Kind      string            `json:"kind"`
	Resource  string            `json:"resource,omitempty"`
	Path      string            `json:"path,omitempty"`
	Origin    string            `json:"origin"`
	Timestamp time.Time         `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Handler receives events. It must not block for long.
type Handler func(Event)

// Notifier publishes events and delivers them to subscribers. A subscription
// lasts until its context is done.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// origin identifies this process in published events.
var origin = uuid.NewString()

// Origin returns the identifier stamped on events published by this process.
func Origin() string { return origin }

func stamp(ev Event) Event {
	if ev.Origin == "" {
		ev.Origin = origin
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error     { return nil }
func (Noop) Subscribe(context.Context, Handler) error { return nil }
func (Noop) Close() error                             { return nil }

// Memory delivers events synchronously to in-process subscribers.
type Memory struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Handler
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]Handler)}
}

// Publish calls every current subscriber in the caller's goroutine.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	ev = stamp(ev)
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Subscribe registers h until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, h Handler) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = h
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()
	return nil
}

// Close drops all subscribers.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.subs = make(map[int]Handler)
	m.mu.Unlock()
	return nil
}

// Instrumented wraps a Notifier with metrics and logs publish failures.
type Instrumented struct {
	Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Instrument returns n wrapped with recorder.
func Instrument(n Notifier, recorder metrics.Recorder, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{Notifier: n, recorder: metrics.OrNoop(recorder), logger: logger}
}

// Publish forwards to the wrapped notifier and records the outcome.
func (i *Instrumented) Publish(ctx context.Context, ev Event) error {
	err := i.Notifier.Publish(ctx, ev)
	i.recorder.IncNotifyPublish(ev.Kind, err == nil)
	if err != nil {
		i.logger.Warn("Event publish failed", logfields.Event(ev.Kind), logfields.Resource(ev.Resource), logfields.Error(err))
	}
	return err
}

// New builds the notifier selected by cfg.
func New(cfg config.NotifyConfig, recorder metrics.Recorder) (Notifier, error) {
	var n Notifier
	switch cfg.Driver {
	case config.NotifyDriverNone:
		n = Noop{}
	case config.NotifyDriverMemory, "":
		n = NewMemory()
	case config.NotifyDriverNATS:
		nn, err := DialNATS(cfg.URL, cfg.Subject)
		if err != nil {
			return nil, err
		}
		n = nn
	default:
		return nil, errors.ConfigError("unknown notify driver").WithContext("driver", string(cfg.Driver)).Build()
	}
	return Instrument(n, recorder, nil), nil
}
