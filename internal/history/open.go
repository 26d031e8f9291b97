package history

import (
	"context"
	"fmt"

	"github.com/johnayoung/math-consensus/internal/logger"
)

// Options selects and configures a Store driver.
type Options struct {
	Driver string // "file", "redis" or "postgres"
	Dir    string
	Redis  RedisOptions
	DSN    string
}

// Open connects the configured driver. Redis is pinged and the Postgres
// table is migrated before the store is returned.
func Open(ctx context.Context, opts Options, log logger.Logger) (Store, error) {
	switch opts.Driver {
	case "", "file":
		return NewFileStore(opts.Dir, log)
	case "redis":
		s := NewRedisStore(NewRedisClient(opts.Redis), opts.Redis.Prefix, log)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		db, err := OpenPostgres(opts.DSN)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(db, log)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", opts.Driver)
	}
}
