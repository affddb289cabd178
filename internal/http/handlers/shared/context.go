package shared

import (
	"strconv"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ParamUint 读取路径参数中的正整数 ID，非法时直接写入错误响应。
func ParamUint(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		RespondError(c, response.CodeBadRequest, "参数 "+name+" 非法", nil)
		return 0, false
	}
	return uint(value), true
}

// QueryUint 读取可选的查询参数，缺省或非法时返回 0。
func QueryUint(c *gin.Context, name string) uint {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

// QueryBool 读取布尔查询参数。
func QueryBool(c *gin.Context, name string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return err == nil && value
}

// QueryInt 读取整数查询参数，第二个返回值表示是否提供了合法值。
func QueryInt(c *gin.Context, name string) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
