package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其他进程持有
var ErrLockHeld = errors.New("cache lock held")

// releaseLockScript 仅删除自己持有的锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock 以 SET NX 获取跨进程互斥锁，ttl 到期自动释放。
// 缓存未启用时直接返回空释放函数，由单进程部署自行保证互斥。
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if !Enabled() {
		return func() {}, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	fullKey := buildKey(key)
	token := uuid.NewString()
	ok, err := redisClient.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	client := redisClient
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseLockScript.Run(releaseCtx, client, []string{fullKey}, token).Err()
	}, nil
}
