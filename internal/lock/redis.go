package lock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still stores the caller's
// owner token. Running it server-side keeps compare and delete atomic.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a Locker over a single Redis instance using SET NX PX.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an open Redis client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, owner, ttl).Result()
	return ok, errors.Wrap(err, "redis setnx")
}

func (r *Redis) Release(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{key}, owner).Int()
	if err != nil {
		return false, errors.Wrap(err, "redis release")
	}
	return n == 1, nil
}
