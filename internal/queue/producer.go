package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/biosync/internal/models"
)

const (
	EventsStreamName  = "ENROLLMENTS"
	EventsSubjectBase = "enrollments"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the JetStream stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        EventsStreamName,
		Subjects:    []string{EventsSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Description: "Enrollment lifecycle events",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishEnrollment publishes an enrollment lifecycle event, one per
// terminal coordinator outcome. Satisfies the coordinator's EventSink.
func (p *Producer) PublishEnrollment(ctx context.Context, ev *models.EnrollmentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal enrollment event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", EventsSubjectBase, ev.Type, ev.UserID)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish enrollment event: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
