// Package notify publishes build results to NATS so running editor
// instances can reload a plugin as soon as its rebuild lands.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/mdkit/internal/events"
	ferrors "git.home.luguber.info/inful/mdkit/internal/foundation/errors"
	"git.home.luguber.info/inful/mdkit/internal/logfields"
)

// BuildNotification is the wire payload, one message per finished attempt.
type BuildNotification struct {
	JobID      string    `json:"job_id"`
	Package    string    `json:"package"`
	Cause      string    `json:"cause"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher forwards BuildFinished events from the bus to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func NewPublisher(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("mdkit"),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNotify, "connect to nats").
			WithContext("url", url).
			Build()
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With("component", "notify"),
	}, nil
}

// Run forwards events until ctx is canceled or the bus closes. Publish
// failures are logged and dropped; notifications are best-effort.
func (p *Publisher) Run(ctx context.Context, bus *events.Bus) {
	ch, cancel := events.Subscribe[events.BuildFinished](bus, 64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.publish(evt)
		}
	}
}

func (p *Publisher) publish(evt events.BuildFinished) {
	payload := BuildNotification{
		JobID:      evt.JobID,
		Package:    evt.Package,
		Cause:      evt.Cause,
		Success:    evt.Err == "",
		Error:      evt.Err,
		DurationMS: evt.Duration.Milliseconds(),
		FinishedAt: evt.FinishedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to encode build notification", logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("Failed to publish build notification",
			logfields.Package(evt.Package), logfields.Error(err))
	}
}

// Close flushes and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("Failed to drain nats connection", logfields.Error(err))
	}
}
