package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/config"
)

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps claims as expiring keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient opens a client for cfg.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewRedisStore returns a RedisStore using keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "proctor:claim:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(interviewID string) string {
	return s.prefix + interviewID
}

// Acquire sets the claim key if absent, with ttl as its expiry.
func (s *RedisStore) Acquire(ctx context.Context, interviewID, owner string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{
		InterviewID: interviewID,
		Token:       uuid.NewString(),
		Owner:       owner,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	ok, err := s.client.SetNX(ctx, s.key(interviewID), lease.Token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim: acquire %s: %w", interviewID, err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeAlreadyRunning, "interview %s is being evaluated", interviewID)
	}
	return lease, nil
}

// Release deletes the claim key if it still holds lease's token.
func (s *RedisStore) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, s.client, []string{s.key(lease.InterviewID)}, lease.Token).Err(); err != nil {
		return fmt.Errorf("claim: release %s: %w", lease.InterviewID, err)
	}
	return nil
}

// Held reports whether the claim key exists.
func (s *RedisStore) Held(ctx context.Context, interviewID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(interviewID)).Result()
	if err != nil {
		return false, fmt.Errorf("claim: check %s: %w", interviewID, err)
	}
	return n > 0, nil
}
