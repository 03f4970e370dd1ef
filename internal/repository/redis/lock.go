package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const LockKeyPrefix = "lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// DistLock 基于 SET NX 的分布式锁，token 用来保证只释放自己的锁
type DistLock struct {
	RDB *redis.Client
}

func (l *DistLock) Acquire(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	return l.RDB.SetNX(ctx, LockKeyPrefix+name, token, ttl).Result()
}

// Release 用lua保证原子性
func (l *DistLock) Release(ctx context.Context, name, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{LockKeyPrefix + name}, token).Err()
}
