package ops

import (
	"github.com/dujiao-next/commission-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/queue"

	"github.com/gin-gonic/gin"
)

// RunSettlement 执行冷却期到期佣金结算
func (h *Handler) RunSettlement(c *gin.Context) {
	h.runBatch(c, queue.TaskAffiliateSettlementRun, "结算执行失败", func() (interface{}, error) {
		return h.SettlementService.SettleDue(c.Request.Context())
	})
}

// RunTierEvaluation 执行推广等级评估
func (h *Handler) RunTierEvaluation(c *gin.Context) {
	h.runBatch(c, queue.TaskAffiliateTierEvaluate, "等级评估失败", func() (interface{}, error) {
		return h.TierEvaluator.Evaluate(c.Request.Context())
	})
}

// RunRiskRefresh 刷新推广账户风险分
func (h *Handler) RunRiskRefresh(c *gin.Context) {
	h.runBatch(c, queue.TaskAffiliateRiskRefresh, "风险分刷新失败", func() (interface{}, error) {
		return h.FraudGuard.RefreshRiskScores(c.Request.Context())
	})
}

// runBatch async=true 且队列可用时投递任务并返回 queued；
// 其余情况同步执行并返回执行结果，进程内通道下与定时任务互斥
func (h *Handler) runBatch(c *gin.Context, taskType, failMsg string, run func() (interface{}, error)) {
	guard, inline := h.batches.(inlineGuard)
	if shared.QueryBool(c, "async") {
		if !inline {
			h.enqueueBatch(c, taskType)
			return
		}
		logger.Debugw("ops_batch_run_inline", "task", taskType)
	}

	var result interface{}
	exec := func() error {
		var err error
		result, err = run()
		return err
	}
	var err error
	if inline {
		err = guard.Exclusive(taskType, exec)
	} else {
		err = exec()
	}
	if err != nil {
		shared.RespondServiceError(c, err, failMsg)
		return
	}
	response.Success(c, result)
}

func (h *Handler) enqueueBatch(c *gin.Context, taskType string) {
	if h.batches == nil {
		shared.RespondError(c, response.CodeUnavailable, "任务投递未启用", nil)
		return
	}
	if err := h.batches.EnqueueBatchRun(taskType, queue.AffiliateBatchRunPayload{Trigger: triggerOps}, h.uniqueTTL); err != nil {
		shared.RespondServiceError(c, err, "任务投递失败")
		return
	}
	response.Accepted(c, gin.H{"task": taskType})
}
