package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"consent-ledger/pkg/platform/sentinel"
)

// Redis stores blobs under "blob:<cid>" keys without expiry.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Put(ctx context.Context, data []byte) (ContentID, error) {
	cid := Compute(data)
	// Identical bytes always map to the same key, so an existing value wins.
	if err := r.client.SetNX(ctx, string(cid.key()), data, 0).Err(); err != nil {
		return "", fmt.Errorf("redis put: %w", err)
	}
	return cid, nil
}

func (r *Redis) Get(ctx context.Context, cid ContentID) ([]byte, error) {
	data, err := r.client.Get(ctx, string(cid.key())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return verify(cid, data)
}
