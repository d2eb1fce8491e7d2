// Package claim implements the per-interview evaluation lease. At most one
// live claim exists per interview; a claim past its expiry no longer counts.
package claim

import (
	"context"
	"time"
)

// Lease is a held claim. Token identifies the holder so a late release
// cannot drop a claim someone else acquired after expiry.
type Lease struct {
	InterviewID string
	Token       string
	Owner       string
	ExpiresAt   time.Time
}

// Store acquires and releases claims.
type Store interface {
	// Acquire creates a claim for interviewID. It fails with AlreadyRunning
	// while another live claim exists.
	Acquire(ctx context.Context, interviewID, owner string, ttl time.Duration) (*Lease, error)
	// Release drops the claim if it is still held by lease.
	Release(ctx context.Context, lease *Lease) error
	// Held reports whether a live claim exists for interviewID.
	Held(ctx context.Context, interviewID string) (bool, error)
}
