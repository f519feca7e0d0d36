package backend

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

// Redigo fronts the same class of server as Redis but through a
// gomodule/redigo connection pool, a second client library for the same
// wire protocol. It exists to demonstrate that the Store boundary is a
// behavioral contract, not tied to one client implementation.
// Selected with -b redigo -d <addr>.
type Redigo struct {
	pool *redis.Pool
}

// NewRedigo builds a connection pool dialing addr (host:port) on demand.
func NewRedigo(addr string) *Redigo {
	return &Redigo{
		pool: &redis.Pool{
			MaxIdle:     8,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
		},
	}
}

func (r *Redigo) Get(key []byte) ([]byte, error) {
	conn := r.pool.Get()
	defer conn.Close()

	v, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redigo) Set(key, value []byte) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("SET", key, value)
	return err
}

func (r *Redigo) Del(key []byte) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", key)
	return err
}

func (r *Redigo) Close() error {
	return r.pool.Close()
}
