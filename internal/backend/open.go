package backend

import "fmt"

// Kind names a concrete backend, selected statically at startup by the -b
// CLI flag (internal/settings).
type Kind string

const (
	KindMemory Kind = "memory"
	KindRedis  Kind = "redis"
	KindRedigo Kind = "redigo"
)

// Open constructs the backend named by kind. path is the backend-specific
// location (a host:port for redis/redigo; ignored for memory).
func Open(kind Kind, path string) (Store, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindRedis:
		return NewRedis(path), nil
	case KindRedigo:
		return NewRedigo(path), nil
	default:
		return nil, fmt.Errorf("backend: unknown kind %q", kind)
	}
}
