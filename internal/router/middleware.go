package router

import (
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey       = "request_id"
	requestIDHeader    = "X-Request-ID"
	opsTokenHeader     = "X-Ops-Token"
	maxRequestIDLength = 64
	slowRequestCutoff  = 2 * time.Second
)

// 点击上报只需要 POST 与预检
var clickCORSMethods = []string{"POST", "OPTIONS"}

var clickCORSHeaders = []string{"Content-Type", requestIDHeader}

// ClickCORSMiddleware 点击上报接口的跨域处理，由店铺前端直接调用
func ClickCORSMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = clickCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = clickCORSHeaders
	}
	methodsValue := strings.Join(methods, ", ")
	headersValue := strings.Join(headers, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if allowed := matchOrigin(c.GetHeader("Origin"), origins, cfg.AllowCredentials); allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if c.Request.Method != "OPTIONS" {
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Methods", methodsValue)
		h.Set("Access-Control-Allow-Headers", headersValue)
		if maxAge != "" {
			h.Set("Access-Control-Max-Age", maxAge)
		}
		c.AbortWithStatus(204)
	}
}

// matchOrigin 返回应回写的 Allow-Origin；携带凭证时通配符回显具体来源
func matchOrigin(origin string, allowed []string, withCredentials bool) string {
	for _, item := range allowed {
		if item != "*" {
			continue
		}
		if withCredentials && origin != "" {
			return origin
		}
		return "*"
	}
	if origin == "" {
		return ""
	}
	for _, item := range allowed {
		if strings.EqualFold(item, origin) {
			return origin
		}
	}
	return ""
}

// RequestIDMiddleware 透传或生成请求 ID，非法的上游 ID 会被替换
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := sanitizeRequestID(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

func sanitizeRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}

// AccessLogMiddleware 请求日志；健康检查不记录，慢请求升级为 warn
func AccessLogMiddleware(log *zap.Logger, skipPaths ...string) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}
	sugar := log.Named("http").Sugar()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.FullPath()]; ok {
			return
		}
		latency := time.Since(start)
		fields := []interface{}{
			"request_id", getRequestID(c),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case len(c.Errors) > 0:
			sugar.Errorw("http_request_failed", append(fields, "errors", c.Errors.String())...)
		case latency >= slowRequestCutoff:
			sugar.Warnw("http_request_slow", fields...)
		default:
			sugar.Infow("http_request", fields...)
		}
	}
}

func getRequestID(c *gin.Context) string {
	if value, ok := c.Get(requestIDKey); ok {
		if requestID, ok := value.(string); ok {
			return requestID
		}
	}
	return ""
}

// OpsTokenMiddleware 运维接口令牌校验，未配置令牌时拒绝所有请求
func OpsTokenMiddleware(token string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(token))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			logger.Warnw("ops_token_not_configured", "path", c.Request.URL.Path)
			response.Unauthorized(c, "运维令牌未配置")
			c.Abort()
			return
		}
		provided := []byte(strings.TrimSpace(c.GetHeader(opsTokenHeader)))
		if len(provided) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			logger.Warnw("ops_token_rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"request_id", getRequestID(c),
			)
			response.Unauthorized(c, "运维令牌无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
