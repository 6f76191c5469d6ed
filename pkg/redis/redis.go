package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     uint16
	Password string
	DB       int
}

type Redis interface {
	Client() *redis.Client
	Close() error
}

type rdb struct {
	client *redis.Client
}

func New(cfg *Config) (Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &rdb{client: client}, nil
}

func (r *rdb) Client() *redis.Client {
	return r.client
}

func (r *rdb) Close() error {
	return r.client.Close()
}
