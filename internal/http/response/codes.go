package response

// 业务状态码沿用 HTTP 语义，写入响应体 status_code
const (
	CodeOK              = 0
	CodeBadRequest      = 400 // 参数或设置非法
	CodeUnauthorized    = 401 // 运维令牌缺失或错误
	CodeNotFound        = 404 // 订单或推广账户不存在
	CodeConflict        = 409 // 同类批处理正在执行
	CodeTooManyRequests = 429 // 点击上报限流
	CodeInternal        = 500
	CodeUnavailable     = 503 // 队列未启用或配置快照不可用
)
