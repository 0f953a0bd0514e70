package messaging

import (
	"context"
	"fmt"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NatsBroker publishes and consumes tesauro messages over NATS.
type NatsBroker struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	config config.Config
}

// NewNatsBroker creates a new NATS message broker
func NewNatsBroker(cfg config.Config) (*NatsBroker, error) {
	client := &NatsBroker{
		config: cfg,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect connects to the NATS server
func (c *NatsBroker) connect() error {
	var err error

	opts := []nats.Option{
		nats.Name(c.config.Nats.Stream),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("server", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			l := log.Error().Err(err)
			if sub != nil {
				l = l.Str("subject", sub.Subject)
			}
			l.Msg("Error handling NATS message")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}

	if c.config.Nats.Username != "" && c.config.Nats.Password != "" {
		opts = append(opts, nats.UserInfo(c.config.Nats.Username, c.config.Nats.Password))
	}

	c.conn, err = nats.Connect(c.config.Nats.URL(), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if c.config.Nats.JetStreamEnabled {
		js, err := jetstream.New(c.conn)
		if err != nil {
			c.conn.Close()
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		c.js = js
	}

	log.Info().
		Str("server", c.conn.ConnectedUrl()).
		Bool("jetstream", c.js != nil).
		Msg("Connected to NATS")
	return nil
}

// Close drains the connection
func (c *NatsBroker) Close() error {
	if c.conn != nil && c.conn.IsConnected() {
		return c.conn.Drain()
	}
	return nil
}

// Ping flushes the connection to check the server is reachable.
func (c *NatsBroker) Ping(ctx context.Context) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return c.conn.FlushWithContext(ctx)
}

// StreamName is the configured stream, or the default one.
func (c *NatsBroker) StreamName() string {
	if c.config.Nats.Stream != "" {
		return c.config.Nats.Stream
	}
	return defaultStreamName
}

// JetStream reports whether persistent messaging is available.
func (c *NatsBroker) JetStream() bool {
	return c.js != nil
}

// PublishSync publishes a message to a subject and, with JetStream, waits for
// the acknowledgement. Without JetStream it flushes a core NATS publish.
func (c *NatsBroker) PublishSync(ctx context.Context, subject string, data []byte) error {
	if c.js == nil {
		if c.conn == nil || !c.conn.IsConnected() {
			return fmt.Errorf("not connected to NATS")
		}
		if err := c.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish message to %s: %w", subject, err)
		}
		return c.conn.FlushWithContext(ctx)
	}

	ack, err := c.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("stream", ack.Stream).
		Uint64("seq", ack.Sequence).
		Msg("Published message to NATS and received ack")
	return nil
}

// CreateStream creates or updates a JetStream stream
func (c *NatsBroker) CreateStream(ctx context.Context, config jetstream.StreamConfig) (jetstream.Stream, error) {
	if c.js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	log.Info().
		Str("name", config.Name).
		Strs("subjects", config.Subjects).
		Msg("Attempting to create or update JetStream stream")

	stream, err := c.js.CreateOrUpdateStream(ctx, config)
	if err != nil {
		log.Error().Err(err).Str("stream", config.Name).Msg("Failed to create or update stream")
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	log.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Msg("Created JetStream stream")

	return stream, nil
}

// GetStream gets a JetStream stream
func (c *NatsBroker) GetStream(ctx context.Context, streamName string) (jetstream.Stream, error) {
	if c.js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	return stream, nil
}

// Subscribe registers a core NATS handler on subject. Used when JetStream is
// disabled.
func (c *NatsBroker) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if c.conn == nil || !c.conn.IsConnected() {
		return nil, fmt.Errorf("not connected to NATS")
	}

	sub, err := c.conn.QueueSubscribe(subject, runRequestConsumer, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.Info().Str("subject", subject).Msg("Subscribed to NATS subject")
	return sub, nil
}

// Consume consumes messages from a JetStream consumer
func (c *NatsBroker) Consume(consumer jetstream.Consumer, handler jetstream.MessageHandler) (jetstream.ConsumeContext, error) {
	if c.js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	consumeCtx, err := consumer.Consume(handler)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from consumer: %w", err)
	}

	return consumeCtx, nil
}

// SetupNatsBroker initializes the NATS broker and, with JetStream, the
// tesauro stream.
func SetupNatsBroker(ctx context.Context, cfg config.Config) (*NatsBroker, error) {
	client, err := NewNatsBroker(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating NATS client: %w", err)
	}

	if client.JetStream() {
		if _, err := EnsureStream(ctx, client, client.StreamName(), []string{streamSubjectPrefix}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ensuring stream %s: %w", client.StreamName(), err)
		}
	}

	return client, nil
}
