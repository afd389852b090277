package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
)

// StreamName is the JetStream stream that stores trophy events.
const StreamName = "trophy"

// EventBus publishes and subscribes to watermill messages.
type EventBus interface {
	message.Publisher
	message.Subscriber
}

type natsEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	natsConn   *nc.Conn
	logger     *slog.Logger
}

// New returns a NATS JetStream backed bus when natsURL is set and an
// in-process bus otherwise.
func New(ctx context.Context, natsURL string, subjects []string, logger *slog.Logger, opts ...nc.Option) (EventBus, error) {
	if natsURL == "" {
		logger.Info("NATS URL not configured, using in-process event bus")
		return NewInProcess(logger), nil
	}
	return NewNATS(ctx, natsURL, subjects, logger, opts...)
}

// NKeyOption authenticates the connection with a user nkey seed.
func NKeyOption(seed string) (nc.Option, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive nkey public key: %w", err)
	}
	return nc.Nkey(pub, kp.Sign), nil
}

// NewInProcess returns a gochannel pub/sub. Messages without subscribers
// are dropped.
func NewInProcess(logger *slog.Logger) EventBus {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger))
}

// NewNATS connects to NATS, makes sure the trophy stream exists and wires
// watermill publisher and subscriber on top of it.
func NewNATS(ctx context.Context, natsURL string, subjects []string, logger *slog.Logger, opts ...nc.Option) (EventBus, error) {
	natsOpts := append([]nc.Option{nc.RetryOnFailedConnect(true)}, opts...)

	natsConn, err := nc.Connect(natsURL, natsOpts...)
	if err != nil {
		logger.Error("Failed to connect to NATS", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}
	if err := EnsureStream(ctx, js, StreamName, subjects, logger); err != nil {
		natsConn.Close()
		return nil, err
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := &nats.NATSMarshaler{}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       natsURL,
			Marshaler: marshaler,
			NatsOptions: natsOpts,
		},
		wmLogger,
	)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create Watermill publisher: %w", err)
	}

	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:         natsURL,
			Unmarshaler: marshaler,
			NatsOptions: natsOpts,
			JetStream: nats.JetStreamConfig{DurablePrefix: StreamName},
		},
		wmLogger,
	)
	if err != nil {
		publisher.Close()
		natsConn.Close()
		return nil, fmt.Errorf("failed to create Watermill subscriber: %w", err)
	}

	return &natsEventBus{
		publisher:  publisher,
		subscriber: subscriber,
		natsConn:   natsConn,
		logger:     logger,
	}, nil
}

func (eb *natsEventBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.UUID == "" {
			msg.UUID = watermill.NewUUID()
		}
	}
	return eb.publisher.Publish(topic, msgs...)
}

func (eb *natsEventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return eb.subscriber.Subscribe(ctx, topic)
}

func (eb *natsEventBus) Close() error {
	err := errors.Join(eb.publisher.Close(), eb.subscriber.Close())
	eb.natsConn.Close()
	return err
}

// EnsureStream creates the stream, or adds any subjects it is missing.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string, logger *slog.Logger) error {
	stream, err := js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, jetstream.StreamConfig{Name: name, Subjects: subjects}); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}
		logger.Info("Created JetStream stream", slog.String("stream", name), slog.Any("subjects", subjects))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check stream %s: %w", name, err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	have := make(map[string]bool, len(info.Config.Subjects))
	for _, s := range info.Config.Subjects {
		have[s] = true
	}
	missing := false
	for _, s := range subjects {
		if !have[s] {
			info.Config.Subjects = append(info.Config.Subjects, s)
			missing = true
		}
	}
	if !missing {
		return nil
	}
	if _, err := js.UpdateStream(ctx, info.Config); err != nil {
		return fmt.Errorf("failed to update stream %s subjects: %w", name, err)
	}
	logger.Info("Updated JetStream stream subjects", slog.String("stream", name))
	return nil
}
