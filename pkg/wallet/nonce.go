package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultChallengeTTL = 5 * time.Minute

// ChallengeStore issues one-time login nonces keyed by wallet address.
// Nonces live in Redis with a TTL and are deleted on first consume so a
// captured signature cannot be replayed.
type ChallengeStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewChallengeStore wraps an existing Redis client for nonce storage.
func NewChallengeStore(client *redis.Client, ttl time.Duration) (*ChallengeStore, error) {
	if client == nil {
		return nil, errors.New("challenge store requires a redis client")
	}
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	return &ChallengeStore{
		client: client,
		prefix: "bookmarket:wallet:nonce:",
		ttl:    ttl,
	}, nil
}

// Issue stores a fresh nonce for the address, replacing any previous one.
func (s *ChallengeStore) Issue(ctx context.Context, address string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	if err := s.client.Set(ctx, s.prefix+address, nonce, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

// Consume removes the stored nonce and reports whether it matched. A nonce
// can be consumed at most once.
func (s *ChallengeStore) Consume(ctx context.Context, address, nonce string) (bool, error) {
	stored, err := s.client.GetDel(ctx, s.prefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return nonce != "" && stored == nonce, nil
}
