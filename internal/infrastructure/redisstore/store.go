// Package redisstore keeps published flow metadata in Redis hashes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zjrosen/flowsync/internal/metadata"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "flowsync:automation:"

type (
	// Config configures the Redis connection.
	Config struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	// Store implements metadata.Store. Each projection is a hash at
	// {prefix}{key}; the set {prefix}index lists every stored key.
	Store struct {
		client *redis.Client
		prefix string
		owned  bool
		now    func() time.Time
	}
)

var _ metadata.Store = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		Protocol:        2,
		DisableIdentity: true,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	s := NewWithClient(client, cfg.Prefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves the client open.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) hashKey(key string) string {
	return s.prefix + key
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Upsert writes every field of p, overwriting an existing record.
func (s *Store) Upsert(ctx context.Context, p metadata.Projection) error {
	hk := s.hashKey(p.Key)
	now := strconv.FormatInt(s.now().Unix(), 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hk,
			"key", p.Key,
			"title", p.Title,
			"description", p.Description,
			"namespace", p.Namespace,
			"flow_id", p.FlowID,
			"template_path", p.TemplatePath,
			"configuration_schema", p.ConfigurationSchema,
			"labels", p.Labels,
			"category", p.Category,
			"difficulty_level", p.DifficultyLevel,
			"price", strconv.FormatFloat(p.Price, 'f', 2, 64),
			"updated_at", now,
		)
		pipe.HSetNX(ctx, hk, "created_at", now)
		pipe.SAdd(ctx, s.indexKey(), p.Key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert %s: %w", p.Key, err)
	}
	return nil
}

// Get reads the projection stored under key.
func (s *Store) Get(ctx context.Context, key string) (metadata.Projection, error) {
	fields, err := s.client.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return metadata.Projection{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return metadata.Projection{}, fmt.Errorf("%w: %s", metadata.ErrNotFound, key)
	}

	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil && fields["price"] != "" {
		return metadata.Projection{}, fmt.Errorf("redis get %s: bad price: %w", key, err)
	}
	return metadata.Projection{
		Key:                 fields["key"],
		Title:               fields["title"],
		Description:         fields["description"],
		Namespace:           fields["namespace"],
		FlowID:              fields["flow_id"],
		TemplatePath:        fields["template_path"],
		ConfigurationSchema: fields["configuration_schema"],
		Labels:              fields["labels"],
		Category:            fields["category"],
		DifficultyLevel:     fields["difficulty_level"],
		Price:               price,
	}, nil
}

// Count returns the number of indexed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis count: %w", err)
	}
	return int(n), nil
}

// Close closes the client when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
