package queue

import (
	"encoding/json"

	"github.com/dujiao-next/commission-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskAffiliateOrderProcess 订单佣金处理任务
	TaskAffiliateOrderProcess = constants.TaskAffiliateOrderProcess
	// TaskAffiliateSettlementRun 佣金结算批处理任务
	TaskAffiliateSettlementRun = constants.TaskAffiliateSettlementRun
	// TaskAffiliateTierEvaluate 推广等级评估任务
	TaskAffiliateTierEvaluate = constants.TaskAffiliateTierEvaluate
	// TaskAffiliateRiskRefresh 风险分刷新任务
	TaskAffiliateRiskRefresh = constants.TaskAffiliateRiskRefresh
	// TaskNotificationDispatch 通知派发唤醒任务
	TaskNotificationDispatch = constants.TaskNotificationDispatch
)

// AffiliateOrderProcessPayload 订单佣金处理任务载荷
type AffiliateOrderProcessPayload struct {
	OrderID uint `json:"order_id"`
}

// AffiliateBatchRunPayload 批处理任务载荷（结算/等级/风控共用）
type AffiliateBatchRunPayload struct {
	Trigger string `json:"trigger"` // cron / ops
}

// NotificationDispatchPayload 通知派发唤醒载荷
type NotificationDispatchPayload struct {
	MessageIDs []string `json:"message_ids"`
}

// NewAffiliateOrderProcessTask 创建订单佣金处理任务
func NewAffiliateOrderProcessTask(payload AffiliateOrderProcessPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateOrderProcess, body), nil
}

// NewAffiliateBatchRunTask 创建批处理任务
func NewAffiliateBatchRunTask(taskType string, payload AffiliateBatchRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}

// NewNotificationDispatchTask 创建通知派发唤醒任务
func NewNotificationDispatchTask(payload NotificationDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDispatch, body), nil
}
