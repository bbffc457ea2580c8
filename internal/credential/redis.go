package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// CachedGenerator remembers the first credential issued per registration
// in Redis, so every retry hands out the same artifact.
type CachedGenerator struct {
	client *redis.Client
	next   ports.CredentialGenerator
	ttl    time.Duration
}

// NewCachedGenerator wraps next with a Redis-backed idempotency cache.
func NewCachedGenerator(client *redis.Client, next ports.CredentialGenerator, ttl time.Duration) *CachedGenerator {
	return &CachedGenerator{client: client, next: next, ttl: ttl}
}

func cacheKey(registrationID string) string {
	return "credential:" + registrationID
}

// Generate returns the cached credential or issues and stores a new one.
// Losing a SETNX race returns the winner's credential.
func (g *CachedGenerator) Generate(ctx context.Context, p ports.CredentialPayload) (string, error) {
	key := cacheKey(p.RegistrationID)
	cached, err := g.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		return "", fmt.Errorf("read credential cache: %w", err)
	}

	cred, err := g.next.Generate(ctx, p)
	if err != nil {
		return "", err
	}
	stored, err := g.client.SetNX(ctx, key, cred, g.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("write credential cache: %w", err)
	}
	if !stored {
		winner, err := g.client.Get(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("read credential cache: %w", err)
		}
		return winner, nil
	}
	return cred, nil
}
