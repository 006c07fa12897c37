// accolade/pkg/transport/redis.go

package transport

import (
	"context"

	"github.com/redis/go-redis/v9"

	"rgehrsitz/accolade/pkg/logging"
)

// Redis consumes events from Redis pub/sub channels.
type Redis struct {
	client   *redis.Client
	channels []string
}

// NewRedis connects to the server at addr and checks it answers.
func NewRedis(ctx context.Context, addr, password string, db int, channels []string) (*Redis, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis transport")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, logging.NewError(logging.ErrorTypeConfig, "failed to connect to Redis", err,
			map[string]interface{}{"addr": addr})
	}
	return NewRedisFromClient(client, channels), nil
}

func NewRedisFromClient(client *redis.Client, channels []string) *Redis {
	return &Redis{client: client, channels: channels}
}

func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	logging.Logger.Info().Strs("channels", r.channels).Msg("Subscribing to Redis channels")

	pubsub := r.client.Subscribe(ctx, r.channels...)
	defer pubsub.Close()

	// Receive waits for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return logging.NewError(logging.ErrorTypeTransient, "failed to subscribe to Redis channels", err,
			map[string]interface{}{"channels": r.channels})
	}
	logging.Logger.Info().Strs("channels", r.channels).Msg("Successfully subscribed to Redis channels")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			deliver(ctx, handler, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topic, payload).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
