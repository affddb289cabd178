package shared

import (
	"github.com/dujiao-next/commission-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// NormalizePagination 归一化分页参数。
func NormalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// PageQuery 读取 page / page_size 查询参数，非法值回落默认值
func PageQuery(c *gin.Context) (int, int) {
	page, _ := QueryInt(c, "page")
	pageSize, _ := QueryInt(c, "page_size")
	return NormalizePagination(page, pageSize)
}

// RespondPage 分页响应
func RespondPage(c *gin.Context, rows interface{}, page, pageSize int, total int64) {
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}
