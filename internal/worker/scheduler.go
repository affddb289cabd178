package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/queue"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

const (
	defaultUniqueTTL = 30 * time.Minute
	triggerCron      = "cron"
)

// batchEnqueuer 批处理任务投递
type batchEnqueuer interface {
	EnqueueBatchRun(taskType string, payload queue.AffiliateBatchRunPayload, uniqueTTL time.Duration) error
}

// Scheduler 定时投递结算、等级评估与风控刷新任务
type Scheduler struct {
	name      string
	cron      *cron.Cron
	enqueuer  batchEnqueuer
	uniqueTTL time.Duration
}

// NewScheduler 创建定时任务调度器，cron 表达式含秒字段，空表达式表示不调度
func NewScheduler(cfg config.SchedulerConfig, enqueuer batchEnqueuer) (*Scheduler, error) {
	if enqueuer == nil {
		return nil, errors.New("enqueuer is nil")
	}
	uniqueTTL := time.Duration(cfg.UniqueTTLMins) * time.Minute
	if uniqueTTL <= 0 {
		uniqueTTL = defaultUniqueTTL
	}
	s := &Scheduler{
		name:      "scheduler",
		cron:      cron.New(cron.WithSeconds()),
		enqueuer:  enqueuer,
		uniqueTTL: uniqueTTL,
	}

	jobs := []struct {
		spec     string
		taskType string
	}{
		{spec: cfg.SettlementSpec, taskType: queue.TaskAffiliateSettlementRun},
		{spec: cfg.TierSpec, taskType: queue.TaskAffiliateTierEvaluate},
		{spec: cfg.RiskSpec, taskType: queue.TaskAffiliateRiskRefresh},
	}
	for _, job := range jobs {
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			logger.Debugw("scheduler_job_disabled", "task", job.taskType)
			continue
		}
		taskType := job.taskType
		if _, err := s.cron.AddFunc(spec, func() { s.enqueue(taskType) }); err != nil {
			return nil, fmt.Errorf("定时任务 %s 表达式非法: %w", taskType, err)
		}
	}
	return s, nil
}

// Name 服务名称
func (s *Scheduler) Name() string {
	if s == nil || s.name == "" {
		return "scheduler"
	}
	return s.name
}

// Start 启动调度并阻塞至 ctx 结束
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler not initialized")
	}
	s.cron.Start()
	logger.Infow("scheduler_started", "jobs", len(s.cron.Entries()))
	<-ctx.Done()
	return nil
}

// Stop 停止调度，等待执行中的投递结束
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) enqueue(taskType string) {
	err := s.enqueuer.EnqueueBatchRun(taskType, queue.AffiliateBatchRunPayload{Trigger: triggerCron}, s.uniqueTTL)
	switch {
	case err == nil:
		logger.Debugw("scheduler_task_enqueued", "task", taskType)
	case errors.Is(err, asynq.ErrDuplicateTask):
		logger.Debugw("scheduler_task_duplicate", "task", taskType)
	default:
		logger.Warnw("scheduler_task_enqueue_failed", "task", taskType, "error", err)
	}
}
