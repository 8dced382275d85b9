package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis Streams publisher.
type RedisConfig struct {
	Addr         string
	Username     string
	Password     string
	Stream       string
	DB           int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	MaxLen       int64
	Logger       *slog.Logger
}

type redisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisPublisher initialises a publisher backed by a Redis stream. The
// caller is responsible for ensuring the Redis instance is reachable.
func NewRedisPublisher(cfg RedisConfig) (Publisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "coursemedia:uploads"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   2,
	})
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &redisPublisher{client: client, stream: stream, maxLen: maxLen, logger: logger}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("event type is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"payload": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}
