package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
)

// NATS publishes events as JSON on one subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// DialNATS connects to url and returns a notifier that owns the connection.
func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("statekeep"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, errors.NotifyError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	n := NewNATS(conn, subject)
	n.owned = true
	slog.Info("NATS notifier connected", slog.String("url", url), slog.String("subject", n.subject))
	return n, nil
}

// NewNATS wraps an existing connection. Close does not close conn.
func NewNATS(conn *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = "statekeep.events"
	}
	return &NATS{conn: conn, subject: subject}
}

// Publish sends ev. Delivery is fire-and-forget; Close flushes pending messages.
func (n *NATS) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(stamp(ev))
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal event").Build()
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.NotifyError("failed to publish event").
			WithCause(err).
			WithContext("subject", n.subject).
			WithContext("kind", ev.Kind).
			Build()
	}
	return nil
}

// Subscribe decodes events from the subject until ctx is done.
func (n *NATS) Subscribe(ctx context.Context, h Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(m *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Warn("Dropping malformed event", slog.String("subject", m.Subject), logfields.Error(err))
			return
		}
		h(ev)
	})
	if err != nil {
		return errors.NotifyError("failed to subscribe").
			WithCause(err).
			WithContext("subject", n.subject).
			Build()
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Flush waits until the server has processed every published message.
func (n *NATS) Flush(timeout time.Duration) error {
	if err := n.conn.FlushTimeout(timeout); err != nil {
		return errors.NotifyError("failed to flush events").WithCause(err).Build()
	}
	return nil
}

// Close flushes and, for dialed connections, drains and closes the connection.
func (n *NATS) Close() error {
	if !n.owned {
		return n.Flush(2 * time.Second)
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return errors.NotifyError("failed to drain connection").WithCause(err).Build()
	}
	return nil
}
