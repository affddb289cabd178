package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/queue"

	"github.com/hibiken/asynq"
)

// InlineDispatcher 队列未启用时在进程内执行批处理任务，同类任务同一时刻只运行一个
type InlineDispatcher struct {
	mux     *asynq.ServeMux
	mu      sync.Mutex
	running map[string]bool
}

// NewInlineDispatcher 创建进程内任务执行器
func NewInlineDispatcher(consumer *Consumer) (*InlineDispatcher, error) {
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &InlineDispatcher{
		mux:     mux,
		running: make(map[string]bool),
	}, nil
}

// EnqueueBatchRun 同步执行批处理任务，已有同类任务运行时返回 asynq.ErrDuplicateTask
func (d *InlineDispatcher) EnqueueBatchRun(taskType string, payload queue.AffiliateBatchRunPayload, _ time.Duration) error {
	task, err := queue.NewAffiliateBatchRunTask(taskType, payload)
	if err != nil {
		return err
	}
	return d.Exclusive(taskType, func() error {
		return d.mux.ProcessTask(context.Background(), task)
	})
}

// Exclusive 在同类任务互斥下执行 fn，供运维接口与定时任务共用
func (d *InlineDispatcher) Exclusive(taskType string, fn func() error) error {
	if !d.acquire(taskType) {
		return asynq.ErrDuplicateTask
	}
	defer d.release(taskType)

	started := time.Now()
	err := fn()
	logger.Debugw("inline_task_finished", "task", taskType, "elapsed_ms", time.Since(started).Milliseconds(), "error", err)
	return err
}

func (d *InlineDispatcher) acquire(taskType string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[taskType] {
		return false
	}
	d.running[taskType] = true
	return true
}

func (d *InlineDispatcher) release(taskType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, taskType)
}
