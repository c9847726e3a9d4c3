package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds the NATS connection and stream settings
type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	ClientID        string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	DuplicateWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "ARENA_LIFECYCLE",
		SubjectPrefix:   "arena.lifecycle",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// publisher is the slice of jetstream.JetStream the relay uses
type publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher relays round lifecycle events to JetStream subjects <prefix>.<kind>. It
// implements orchestrator.LifecycleSink.
type Publisher struct {
	nc     *nats.Conn
	js     publisher
	config Config
}

// Envelope is the message body published for every lifecycle event
type Envelope struct {
	EventID   string                      `json:"eventId"`
	EventType string                      `json:"eventType"`
	RoundID   int64                       `json:"roundId"`
	ClientID  string                      `json:"clientId,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
	Payload   orchestrator.LifecycleEvent `json:"payload"`
}

// Connect dials NATS and makes sure the lifecycle stream exists.
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("roast-arena-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("lifecycle relay connected")
	return &Publisher{nc: nc, js: js, config: cfg}, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg Config) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Roast arena round lifecycle events",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  cfg.DuplicateWindow,
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// Subject returns the subject an event of kind is published on.
func (p *Publisher) Subject(kind orchestrator.LifecycleKind) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, kind)
}

// Publish sends ev to its subject. The message id is derived from the round, kind and phase
// so JetStream drops duplicates inside the duplicate window.
func (p *Publisher) Publish(ctx context.Context, ev orchestrator.LifecycleEvent) error {
	msg, err := p.message(ev)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(msg.Header.Get("Event-ID")),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Int64("round_id", ev.RoundID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published lifecycle event")
	return nil
}

func (p *Publisher) message(ev orchestrator.LifecycleEvent) (*nats.Msg, error) {
	id := eventID(ev)
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	data, err := json.Marshal(Envelope{
		EventID:   id,
		EventType: string(ev.Kind),
		RoundID:   ev.RoundID,
		ClientID:  p.config.ClientID,
		Timestamp: ts,
		Payload:   ev,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	return &nats.Msg{
		Subject: p.Subject(ev.Kind),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(ev.Kind)},
			"Round-ID":   []string{fmt.Sprintf("%d", ev.RoundID)},
			"Event-ID":   []string{id},
		},
	}, nil
}

// eventID is stable for the same transition so replays from several clients collapse.
func eventID(ev orchestrator.LifecycleEvent) string {
	name := fmt.Sprintf("%d/%s/%s/%s", ev.RoundID, ev.Kind, ev.Previous, ev.Phase)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
