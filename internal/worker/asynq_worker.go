package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAffiliateOrderProcess, c.handleAffiliateOrderProcess)
	mux.HandleFunc(queue.TaskAffiliateSettlementRun, c.handleAffiliateSettlementRun)
	mux.HandleFunc(queue.TaskAffiliateTierEvaluate, c.handleAffiliateTierEvaluate)
	mux.HandleFunc(queue.TaskAffiliateRiskRefresh, c.handleAffiliateRiskRefresh)
}

func (c *Consumer) handleAffiliateOrderProcess(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.OrderProcessor == nil {
		logger.Debugw("worker_affiliate_order_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateOrderProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_affiliate_order_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_affiliate_order_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	result, err := c.OrderProcessor.Process(ctx, payload.OrderID)
	if err != nil {
		logger.Warnw("worker_affiliate_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if !result.Success {
		logger.Debugw("worker_affiliate_order_skipped",
			"order_id", payload.OrderID,
			"code", result.Code,
			"reason", result.Reason,
		)
	}
	return nil
}

func (c *Consumer) handleAffiliateSettlementRun(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.SettlementService == nil {
		logger.Debugw("worker_affiliate_settlement_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	trigger := batchTrigger(task)
	result, err := c.SettlementService.SettleDue(ctx)
	if err != nil {
		return batchError("worker_affiliate_settlement_failed", trigger, err)
	}
	logger.Infow("worker_affiliate_settlement_done",
		"trigger", trigger,
		"run_id", result.RunID,
		"approved", result.Approved,
		"rejected", result.Rejected,
		"failed", len(result.Failures),
	)
	return nil
}

func (c *Consumer) handleAffiliateTierEvaluate(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.TierEvaluator == nil {
		logger.Debugw("worker_affiliate_tier_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	trigger := batchTrigger(task)
	result, err := c.TierEvaluator.Evaluate(ctx)
	if err != nil {
		return batchError("worker_affiliate_tier_failed", trigger, err)
	}
	logger.Infow("worker_affiliate_tier_done",
		"trigger", trigger,
		"evaluated", result.Evaluated,
		"promoted", len(result.Promotions),
		"failed", result.Failed,
	)
	return nil
}

func (c *Consumer) handleAffiliateRiskRefresh(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Container == nil || c.FraudGuard == nil {
		logger.Debugw("worker_affiliate_risk_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	trigger := batchTrigger(task)
	result, err := c.FraudGuard.RefreshRiskScores(ctx)
	if err != nil {
		return batchError("worker_affiliate_risk_failed", trigger, err)
	}
	logger.Infow("worker_affiliate_risk_done",
		"trigger", trigger,
		"processed", result.Processed,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return nil
}

// batchError 其他进程正在执行同类批处理时视为成功，避免重试堆积
func batchError(event, trigger string, err error) error {
	if errors.Is(err, service.ErrBatchInProgress) {
		logger.Infow("worker_affiliate_batch_in_progress", "event", event, "trigger", trigger, "error", err)
		return nil
	}
	logger.Warnw(event, "trigger", trigger, "error", err)
	return err
}

// batchTrigger 解析批处理触发来源，载荷非法时不阻断任务
func batchTrigger(task *asynq.Task) string {
	var payload queue.AffiliateBatchRunPayload
	if len(task.Payload()) == 0 {
		return "unknown"
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.Trigger == "" {
		return "unknown"
	}
	return payload.Trigger
}
