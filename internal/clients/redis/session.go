package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
)

// SessionStore is the request-scoped soft-memory scratch, one redis hash per
// session key. A distributed deployment shares it across workers.
type SessionStore interface {
	Get(ctx context.Context, sessionKey, field string) (string, error)
	GetAll(ctx context.Context, sessionKey string) (map[string]string, error)
	Set(ctx context.Context, sessionKey string, fields map[string]string) error
	Delete(ctx context.Context, sessionKey string, fields ...string) error
	Close() error
}

type sessionStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSessionStore(log *logger.Logger) (SessionStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &sessionStore{
		log: log.With("service", "SessionStore"),
		rdb: rdb,
		ttl: 30 * 24 * time.Hour,
	}, nil
}

func sessionHashKey(sessionKey string) string {
	return "session:" + sessionKey
}

func (s *sessionStore) Get(ctx context.Context, sessionKey, field string) (string, error) {
	v, err := s.rdb.HGet(ctx, sessionHashKey(sessionKey), field).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *sessionStore) GetAll(ctx context.Context, sessionKey string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, sessionHashKey(sessionKey)).Result()
}

func (s *sessionStore) Set(ctx context.Context, sessionKey string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	key := sessionHashKey(sessionKey)
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

func (s *sessionStore) Delete(ctx context.Context, sessionKey string, fields ...string) error {
	if len(fields) == 0 {
		return s.rdb.Del(ctx, sessionHashKey(sessionKey)).Err()
	}
	return s.rdb.HDel(ctx, sessionHashKey(sessionKey), fields...).Err()
}

func (s *sessionStore) Close() error {
	return s.rdb.Close()
}
