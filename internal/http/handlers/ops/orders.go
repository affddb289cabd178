package ops

import (
	"github.com/dujiao-next/commission-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/queue"

	"github.com/gin-gonic/gin"
)

// RejectOrderReferralsRequest 订单佣金驳回请求
type RejectOrderReferralsRequest struct {
	Reason string `json:"reason"`
}

// ProcessOrder 计算订单佣金，async=true 时投递到队列
func (h *Handler) ProcessOrder(c *gin.Context) {
	orderID, ok := shared.ParamUint(c, "id")
	if !ok {
		return
	}
	if shared.QueryBool(c, "async") {
		if !h.QueueClient.Enabled() {
			shared.RespondError(c, response.CodeUnavailable, "任务队列未启用", nil)
			return
		}
		if err := h.QueueClient.EnqueueAffiliateOrderProcess(queue.AffiliateOrderProcessPayload{OrderID: orderID}); err != nil {
			shared.RespondServiceError(c, err, "任务投递失败")
			return
		}
		response.Accepted(c, gin.H{"order_id": orderID, "task_id": queue.OrderProcessTaskID(orderID)})
		return
	}

	result, err := h.OrderProcessor.Process(c.Request.Context(), orderID)
	if err != nil {
		shared.RespondServiceError(c, err, "佣金计算失败")
		return
	}
	// 业务拒绝以结果码返回，不视为接口错误
	response.Success(c, result)
}

// RejectOrderReferrals 订单退款或取消后驳回待结算佣金
func (h *Handler) RejectOrderReferrals(c *gin.Context) {
	orderID, ok := shared.ParamUint(c, "id")
	if !ok {
		return
	}
	var req RejectOrderReferralsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			shared.RespondError(c, response.CodeBadRequest, "请求参数错误", err)
			return
		}
	}
	rejected, err := h.AffiliateService.RejectOrderReferrals(orderID, req.Reason)
	if err != nil {
		shared.RespondServiceError(c, err, "驳回佣金失败")
		return
	}
	response.Success(c, gin.H{"order_id": orderID, "rejected": rejected})
}
