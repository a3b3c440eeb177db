package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions selects which events a subscription receives.
type SubscribeOptions struct {
	// Signature limits the subscription to one transaction. Empty means all.
	Signature string
	// Durable names a consumer that survives restarts. Empty is ephemeral.
	Durable string
}

// FilterSubject returns the subject the consumer filters on.
func (o SubscribeOptions) FilterSubject() string {
	if o.Signature == "" {
		return StreamSubjects
	}
	return Subject(o.Signature)
}

// Subscribe consumes status events until ctx is done, calling fn for each
// one. Malformed messages are logged, acknowledged and skipped.
func Subscribe(ctx context.Context, natsURL string, opts SubscribeOptions, logger *slog.Logger, fn func(*TxStatusEvent)) error {
	nc, err := Connect(natsURL, "roxscan-subscriber")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject: opts.FilterSubject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	}
	if opts.Durable != "" {
		cfg.Durable = opts.Durable
		cfg.Name = opts.Durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, cfg)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		event, err := DecodeEvent(msg.Data())
		if err != nil {
			logger.Warn("skipping malformed status event", "subject", msg.Subject(), "error", err)
			_ = msg.Ack()
			return
		}
		fn(event)
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}
