package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lbot-tgbot-go/internal/config"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches classifier labels by language and text
type Service interface {
	Get(ctx context.Context, language, text string) (string, bool)
	Set(ctx context.Context, language, text, label string) error
	Clear(ctx context.Context) error
}

// Cache types
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// NewCache creates the configured label cache. A disabled cache never hits.
func NewCache(cfg *config.ClassifierCacheConfig, logger *logrus.Logger) (Service, error) {
	if !cfg.Enabled {
		return &MemoryCache{enabled: false}, nil
	}

	switch cfg.Type {
	case TypeRedis:
		return NewRedisCache(cfg, logger)
	case TypeMemory, "":
		return NewMemoryCache(cfg.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Key derives the storage key of a (language, text) pair
func Key(language, text string) string {
	data := fmt.Sprintf("%s:%s", language, text)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// MemoryCache keeps labels in process memory
type MemoryCache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
}

// NewMemoryCache creates an in-process cache whose entries expire after ttl
func NewMemoryCache(ttl time.Duration, logger *logrus.Logger) *MemoryCache {
	return &MemoryCache{
		enabled: true,
		cache:   cache.New(ttl, ttl*2),
		logger:  logger,
	}
}

func (c *MemoryCache) Get(ctx context.Context, language, text string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	if val, found := c.cache.Get(Key(language, text)); found {
		c.logger.WithField("language", language).Debug("Label cache hit")
		return val.(string), true
	}
	return "", false
}

func (c *MemoryCache) Set(ctx context.Context, language, text, label string) error {
	if !c.enabled {
		return nil
	}
	c.cache.SetDefault(Key(language, text), label)
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	c.cache.Flush()
	c.logger.Info("Label cache cleared")
	return nil
}

// RedisCache shares labels between bot instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

const redisPrefix = "classifier:"

// NewRedisCache connects to redis and verifies the connection
func NewRedisCache(cfg *config.ClassifierCacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, language, text string) (string, bool) {
	label, err := r.client.Get(ctx, redisPrefix+Key(language, text)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		r.logger.WithError(err).Warn("Failed to read label from redis")
		return "", false
	}
	return label, true
}

func (r *RedisCache) Set(ctx context.Context, language, text, label string) error {
	if err := r.client.Set(ctx, redisPrefix+Key(language, text), label, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store label: %w", err)
	}
	return nil
}

// Clear removes every classifier entry from the redis database
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
