package trifleachievements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore implements BlobStore with plain Redis string keys.
type RedisBlobStore struct {
	Client    redis.UniversalClient
	Prefix    string
	Separator string
}

// NewRedisBlobStore creates a Redis blob store.
func NewRedisBlobStore(client redis.UniversalClient, prefix string) *RedisBlobStore {
	if prefix == "" {
		prefix = "trfl"
	}
	return &RedisBlobStore{
		Client:    client,
		Prefix:    prefix,
		Separator: "::",
	}
}

func (s *RedisBlobStore) Description() string {
	return fmt.Sprintf("RedisBlobStore(%s)", s.Prefix)
}

// Load returns the blob stored under key.
func (s *RedisBlobStore) Load(key string) (string, bool, error) {
	if s.Client == nil {
		return "", false, NewConfigurationError("redis blob store requires Client")
	}
	data, err := s.Client.Get(context.Background(), s.joinedKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, loadError(s, key, err)
	}
	return data, true, nil
}

// Save stores data under key without expiry.
func (s *RedisBlobStore) Save(key string, data string) error {
	if s.Client == nil {
		return NewConfigurationError("redis blob store requires Client")
	}
	if err := s.Client.Set(context.Background(), s.joinedKey(key), data, 0).Err(); err != nil {
		return saveError(s, key, data, err, isRedisOOM(err))
	}
	return nil
}

// Delete removes key.
func (s *RedisBlobStore) Delete(key string) error {
	if s.Client == nil {
		return NewConfigurationError("redis blob store requires Client")
	}
	if err := s.Client.Del(context.Background(), s.joinedKey(key)).Err(); err != nil {
		return deleteError(s, key, err)
	}
	return nil
}

func (s *RedisBlobStore) joinedKey(key string) string {
	return Key{Prefix: s.Prefix, Name: key}.Join(s.Separator)
}

// Redis answers writes over maxmemory with an "OOM ..." error reply.
func isRedisOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM")
}
