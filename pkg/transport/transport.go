// accolade/pkg/transport/transport.go

// Package transport delivers events to the engine and carries award
// notifications back out.
package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rgehrsitz/accolade/pkg/logging"
)

// MaxPublishTries bounds Publish attempts in PublishWithRetry.
const MaxPublishTries = 3

// Handler receives one message. Errors are logged by the transport and do
// not stop the subscription.
type Handler func(ctx context.Context, topic string, payload []byte) error

type Transport interface {
	// Subscribe delivers messages to handler until ctx is done.
	Subscribe(ctx context.Context, handler Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// PublishWithRetry publishes with exponential backoff, giving up after
// MaxPublishTries attempts.
func PublishWithRetry(ctx context.Context, t Transport, topic string, payload []byte) error {
	return publishWithRetry(ctx, t, topic, payload, 200*time.Millisecond)
}

func publishWithRetry(ctx context.Context, t Transport, topic string, payload []byte, interval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, MaxPublishTries-1), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := t.Publish(ctx, topic, payload)
		if err != nil {
			logging.Logger.Debug().Err(err).Str("topic", topic).Int("attempt", attempt).Msg("Publish failed")
		}
		return err
	}, policy)
	if err != nil {
		return logging.NewError(logging.ErrorTypeTransient, "publish failed", err,
			map[string]interface{}{"topic": topic, "attempts": attempt})
	}
	return nil
}

func deliver(ctx context.Context, handler Handler, topic string, payload []byte) {
	if err := handler(ctx, topic, payload); err != nil {
		logging.LogError(logging.Logger.With().Str("topic", topic).Logger(), err)
	}
}
