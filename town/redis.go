package town

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// RedisBacking adapts a redis client to the Backing contract.
type RedisBacking struct {
	rdb *redis.Client
}

func NewRedisBacking(rdb *redis.Client) *RedisBacking {
	return &RedisBacking{rdb: rdb}
}

func (r *RedisBacking) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisBacking) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, 0).Err()
}

func (r *RedisBacking) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

func (r *RedisBacking) Subscribe(ctx context.Context, channel string) (<-chan []byte, func()) {
	pubsub := r.rdb.Subscribe(ctx, channel)
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()

	cancel := func() {
		pubsub.Close()
	}
	return out, cancel
}
