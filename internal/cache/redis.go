package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentlab/inference-gateway/internal/crypto"
	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the durable tier of the exact-match cache, shared by all
// gateway processes pointed at the same Redis. Payloads are sealed with
// the encryptor when one is configured.
type RedisStore struct {
	client    *redis.Client
	encryptor *crypto.Encryptor
}

func NewRedisStore(redisURL string, encryptor *crypto.Encryptor) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{client: client, encryptor: encryptor}, nil
}

func NewRedisStoreWithClient(client *redis.Client, encryptor *crypto.Encryptor) *RedisStore {
	return &RedisStore{client: client, encryptor: encryptor}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	if s.encryptor != nil {
		plaintext, err := s.encryptor.Decrypt(string(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt: %v", domain.ErrCacheCorruption, err)
		}
		data = plaintext
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", domain.ErrCacheCorruption, err)
	}

	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	payload := data
	if s.encryptor != nil {
		sealed, err := s.encryptor.Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt entry: %w", err)
		}
		payload = []byte(sealed)
	}

	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
