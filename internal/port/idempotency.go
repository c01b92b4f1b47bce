package port

import "context"

type IdempotencyGuard interface {
	// Claim returns false if key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)

	// Release frees a key whose request failed before any side effect.
	Release(ctx context.Context, key string) error
}
