package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultSecretsKey is the Redis hash holding resource secrets.
const DefaultSecretsKey = "demogate:secrets"

// HashReader is the subset of the Redis client used to read secrets.
type HashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSecretSource reads resource secrets from a Redis hash whose fields
// are scope ids and whose values are the secrets.
type RedisSecretSource struct {
	client HashReader
	key    string
}

// NewRedisSecretSource creates a new Redis secret source
func NewRedisSecretSource(client HashReader, key string) *RedisSecretSource {
	if key == "" {
		key = DefaultSecretsKey
	}
	return &RedisSecretSource{
		client: client,
		key:    key,
	}
}

// Load fetches every scope in the hash. Empty values are skipped.
func (s *RedisSecretSource) Load(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets hash %q: %w", s.key, err)
	}

	secrets := make(map[string]string, len(values))
	for scope, value := range values {
		if scope == "" || value == "" {
			continue
		}
		secrets[scope] = value
	}
	return secrets, nil
}
