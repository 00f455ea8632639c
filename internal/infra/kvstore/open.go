package kvstore

import (
	"fmt"
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Options selects and configures a backend.
type Options struct {
	Backend       string // memory, file or redis
	File          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Open builds the configured store. The returned close function releases
// backend resources and is never nil.
func Open(opts Options, logger *zap.Logger) (port.KVStore, func() error, error) {
	nop := func() error { return nil }

	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nop, nil
	case "file":
		f, err := NewFile(opts.File, logger)
		if err != nil {
			return nil, nop, err
		}
		return f, nop, nil
	case "redis":
		r, err := NewRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL)
		if err != nil {
			return nil, nop, err
		}
		return r, r.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown kv backend %q", opts.Backend)
	}
}
