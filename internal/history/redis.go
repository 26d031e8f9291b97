package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces history keys.
const DefaultRedisPrefix = "math-consensus:history:"

// RedisStore keeps each record as a JSON string plus a sorted-set index
// scored by timestamp.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisClient builds a go-redis client with the pool settings used for
// history storage.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// NewRedisStore wraps client. An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string, log logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RedisStore{client: client, prefix: prefix, log: log}
}

func (s *RedisStore) Driver() string { return "redis" }

// Ping tests the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string { return s.prefix + "record:" + id }
func (s *RedisStore) indexKey() string     { return s.prefix + "index" }

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(rec.Timestamp.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	id, err := CanonicalID(id)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", id, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Summary, error) {
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *RedisStore) All(ctx context.Context) ([]*Record, error) {
	recs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(recs)
	return recs, nil
}

func (s *RedisStore) load(ctx context.Context) ([]*Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading history index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching history records: %w", err)
	}

	recs := make([]*Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			s.log.Warn("history index references missing record", map[string]interface{}{"id": ids[i]})
			continue
		}
		rec, err := Decode([]byte(str))
		if err != nil {
			s.log.WithError(err).Warn("skipping unreadable history record", map[string]interface{}{"id": ids[i]})
			continue
		}
		if rec.ID == "" {
			rec.ID = ids[i]
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
