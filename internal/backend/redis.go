package backend

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Redis fronts a Redis (or Redis-wire-protocol-compatible) server through
// go-redis/v8, one of several network-attached backends (alongside
// Redigo) behind the same narrow Store contract. Selected with
// -b redis -d <addr>.
//
// The database worker is the sole caller (spec.md §5: "the worker is the
// sole writer to the backend; no backend lock is required"), so this
// adapter does no additional synchronization of its own — the go-redis
// client is already safe for the single goroutine that owns it.
type Redis struct {
	client *redis.Client
}

// NewRedis dials addr (host:port) without blocking; go-redis connects
// lazily on first use.
func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Get(key []byte) ([]byte, error) {
	v, err := r.client.Get(context.Background(), string(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(key, value []byte) error {
	return r.client.Set(context.Background(), string(key), value, 0).Err()
}

func (r *Redis) Del(key []byte) error {
	return r.client.Del(context.Background(), string(key)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
