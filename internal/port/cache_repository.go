package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims a key, returns false if already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// CompleteIdempotency stores the order created under a claimed key
	CompleteIdempotency(ctx context.Context, key string, orderID int64) error

	// GetIdempotency returns the order stored under key, 0 while the first attempt is in flight
	GetIdempotency(ctx context.Context, key string) (int64, error)

	// ReleaseIdempotency drops a claim so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
