package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/memory"
)

// RedisStore keeps conversations in a shared Redis cache. Records expire
// after the configured TTL; every Save refreshes the window.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	limits memory.Limits
	log    *logging.Logger
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// URL is a redis:// or rediss:// connection URL.
	URL    string
	Prefix string
	TTL    time.Duration
	Limits memory.Limits
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions, log *logging.Logger) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, unavailable(err)
	}

	s := newRedisStore(client, opts, log)
	s.log.Info().Str("prefix", s.prefix).Dur("ttl", s.ttl).Msg("connected to redis session store")
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions, log *logging.Logger) *RedisStore {
	return newRedisStore(client, opts, log)
}

func newRedisStore(client *redis.Client, opts RedisOptions, log *logging.Logger) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		limits: opts.Limits,
		log:    log.Sub("session.redis"),
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Load fetches and deserializes the conversation for the session. A miss
// yields a fresh empty conversation; a connection failure is surfaced as a
// retryable connectivity error, never as an empty result.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return memory.New(sessionID, s.limits), nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var recs []memory.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		// A corrupt record is unrecoverable; start the session over rather
		// than failing every future request for it.
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("discarding corrupt session record")
		return memory.New(sessionID, s.limits), nil
	}

	return memory.FromRecords(sessionID, recs, s.limits), nil
}

// Save writes the serialized conversation and resets its TTL.
func (s *RedisStore) Save(ctx context.Context, conv *memory.Conversation) error {
	if err := ValidateSessionID(conv.SessionID()); err != nil {
		return err
	}

	data, err := json.Marshal(conv.Records())
	if err != nil {
		return fmt.Errorf("serializing session %s: %w", conv.SessionID(), err)
	}

	if err := s.client.Set(ctx, s.key(conv.SessionID()), data, s.ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Delete removes the session record, reporting whether one existed.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}

	n, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
