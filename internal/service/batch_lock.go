package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/logger"
)

// batchLockTTL 批处理锁最长持有时间，进程崩溃后自动释放
const batchLockTTL = 10 * time.Minute

// runExclusive 在跨进程锁内执行批处理；锁被占用返回 ErrBatchInProgress，Redis 故障时降级为直接执行
func runExclusive(ctx context.Context, lockKey string, fn func() error) error {
	release, err := cache.AcquireLock(ctx, lockKey, batchLockTTL)
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		return fmt.Errorf("%w: %s", ErrBatchInProgress, lockKey)
	case err != nil:
		logger.Warnw("batch_lock_unavailable", "lock", lockKey, "error", err)
		return fn()
	}
	defer release()
	return fn()
}
