package response

import "errors"

// AppError 接口层错误：业务码 + 对外消息 + 原始错误
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Expected 是否为可预期错误（4xx），可预期错误不记录 error 日志
func (e *AppError) Expected() bool {
	return e != nil && e.Code >= 400 && e.Code < 500
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorRule 哨兵错误到业务码的映射
type ErrorRule struct {
	Target  error
	Code    int
	Message string
}

// Classify 按规则顺序匹配 errors.Is，未命中时使用兜底错误
func Classify(err error, rules []ErrorRule, fallback *AppError) *AppError {
	if err == nil {
		return nil
	}
	for _, rule := range rules {
		if rule.Target != nil && errors.Is(err, rule.Target) {
			return WrapError(rule.Code, rule.Message, err)
		}
	}
	if fallback == nil {
		return WrapError(CodeInternal, "internal error", err)
	}
	return WrapError(fallback.Code, fallback.Message, err)
}
