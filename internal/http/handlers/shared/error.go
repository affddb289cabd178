package shared

import (
	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// serviceErrorRules 引擎哨兵错误对应的接口业务码
var serviceErrorRules = []response.ErrorRule{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Message: "订单不存在"},
	{Target: service.ErrAffiliateNotFound, Code: response.CodeNotFound, Message: "推广账户不存在"},
	{Target: service.ErrAffiliateConfigInvalid, Code: response.CodeBadRequest, Message: "设置参数非法"},
	{Target: service.ErrCommissionRuleInvalid, Code: response.CodeBadRequest, Message: "佣金规则非法"},
	{Target: service.ErrReferralAlreadySettled, Code: response.CodeConflict, Message: "佣金已结算"},
	{Target: asynq.ErrDuplicateTask, Code: response.CodeConflict, Message: "同类任务已在执行或排队"},
	{Target: asynq.ErrTaskIDConflict, Code: response.CodeConflict, Message: "该订单已在处理队列中"},
	{Target: service.ErrBatchInProgress, Code: response.CodeConflict, Message: "同类任务已在执行或排队"},
	{Target: service.ErrSnapshotUnavailable, Code: response.CodeUnavailable, Message: "佣金配置暂不可用"},
}

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，仅在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	respond(c, response.WrapError(code, msg, err))
}

// RespondServiceError 将引擎错误映射为业务码，未识别的按 fallbackMsg 返回 500。
func RespondServiceError(c *gin.Context, err error, fallbackMsg string) {
	respond(c, response.Classify(err, serviceErrorRules, response.WrapError(response.CodeInternal, fallbackMsg, nil)))
}

func respond(c *gin.Context, appErr *response.AppError) {
	if appErr.Err != nil {
		log := RequestLog(c)
		fields := []interface{}{"code", appErr.Code, "message", appErr.Message, "error", appErr.Err}
		if appErr.Expected() {
			log.Debugw("handler_rejected", fields...)
		} else {
			log.Errorw("handler_error", fields...)
		}
	}
	response.Error(c, appErr.Code, appErr.Message)
}
