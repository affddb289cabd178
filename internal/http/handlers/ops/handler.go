package ops

import (
	"time"

	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"
)

const triggerOps = "ops"

// BatchEnqueuer 批处理任务投递（队列或进程内执行）
type BatchEnqueuer interface {
	EnqueueBatchRun(taskType string, payload queue.AffiliateBatchRunPayload, uniqueTTL time.Duration) error
}

// inlineGuard 队列未启用时的进程内任务通道，调用返回即任务已完成
type inlineGuard interface {
	Exclusive(taskType string, fn func() error) error
}

// Handler 运维接口处理器入口
// 说明：仅供内部运维调用，需携带 X-Ops-Token。
type Handler struct {
	*provider.Container
	batches   BatchEnqueuer
	uniqueTTL time.Duration
}

// New 创建运维处理器
func New(c *provider.Container, batches BatchEnqueuer) *Handler {
	uniqueTTL := 30 * time.Minute
	if c != nil && c.Config != nil && c.Config.Scheduler.UniqueTTLMins > 0 {
		uniqueTTL = time.Duration(c.Config.Scheduler.UniqueTTLMins) * time.Minute
	}
	return &Handler{
		Container: c,
		batches:   batches,
		uniqueTTL: uniqueTTL,
	}
}
