package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/session"
)

type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(cfg config.RedisConfig, key string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.New("failed to connect to Redis: " + err.Error())
	}

	return NewRedisStoreFromClient(client, key, ttl), nil
}

func NewRedisStoreFromClient(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (rs *RedisStore) Load(ctx context.Context) (*session.State, error) {
	val, err := rs.client.Get(ctx, rs.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return session.Unmarshal(val)
}

// Save replaces the stored state in a single SET, so readers never see a
// partial value.
func (rs *RedisStore) Save(ctx context.Context, s *session.State) error {
	data, err := session.Marshal(s)
	if err != nil {
		return err
	}
	return rs.client.Set(ctx, rs.key, data, rs.ttl).Err()
}

func (rs *RedisStore) Delete(ctx context.Context) error {
	return rs.client.Del(ctx, rs.key).Err()
}

func (rs *RedisStore) Type() string {
	return "redis"
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
