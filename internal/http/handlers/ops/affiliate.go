package ops

import (
	"strings"

	"github.com/dujiao-next/commission-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/repository"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// TrackClickRequest 推广点击记录请求
type TrackClickRequest struct {
	AffiliateCode string `json:"affiliate_code" binding:"required"`
	VisitorKey    string `json:"visitor_key"`
	LandingPath   string `json:"landing_path"`
}

// TrackClick 记录推广点击
func (h *Handler) TrackClick(c *gin.Context) {
	var req TrackClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	if err := h.AffiliateService.TrackClick(service.AffiliateTrackClickInput{
		AffiliateCode: req.AffiliateCode,
		VisitorKey:    req.VisitorKey,
		LandingPath:   req.LandingPath,
		ClientIP:      c.ClientIP(),
		UserAgent:     c.GetHeader("User-Agent"),
	}); err != nil {
		shared.RespondError(c, response.CodeInternal, "点击记录失败", err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

// GetAffiliateSettings 获取推广返利设置
func (h *Handler) GetAffiliateSettings(c *gin.Context) {
	setting, err := h.SettingService.GetAffiliateSetting()
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "获取设置失败", err)
		return
	}
	response.Success(c, setting)
}

// UpdateAffiliateSettings 更新推广返利设置，配置快照随写入自动失效
func (h *Handler) UpdateAffiliateSettings(c *gin.Context) {
	var req service.AffiliateSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "请求参数错误", err)
		return
	}
	setting, err := h.SettingService.UpdateAffiliateSetting(req)
	if err != nil {
		shared.RespondServiceError(c, err, "保存设置失败")
		return
	}
	response.Success(c, setting)
}

// InvalidateConfig 丢弃缓存的配置快照
func (h *Handler) InvalidateConfig(c *gin.Context) {
	if err := h.ConfigProvider.Invalidate(c.Request.Context()); err != nil {
		shared.RespondError(c, response.CodeInternal, "配置缓存清理失败", err)
		return
	}
	snap, err := h.ConfigProvider.Snapshot(c.Request.Context())
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "配置加载失败", err)
		return
	}
	response.Success(c, gin.H{
		"version":       snap.Version,
		"rules":         len(snap.Rules),
		"skipped_rules": snap.SkippedRules,
		"loaded_at":     snap.LoadedAt,
	})
}

// VerifyLedger 回放推广账户流水校验余额
func (h *Handler) VerifyLedger(c *gin.Context) {
	affiliateID, ok := shared.ParamUint(c, "id")
	if !ok {
		return
	}
	report, err := h.AffiliateService.VerifyLedger(affiliateID)
	if err != nil {
		shared.RespondServiceError(c, err, "流水校验失败")
		return
	}
	response.Success(c, report)
}

// ListReferrals 分页查询佣金记录
func (h *Handler) ListReferrals(c *gin.Context) {
	page, pageSize := shared.PageQuery(c)

	rows, total, err := h.AffiliateService.ListReferrals(repository.ReferralListFilter{
		Page:               page,
		PageSize:           pageSize,
		AffiliateAccountID: shared.QueryUint(c, "affiliate_id"),
		OrderID:            shared.QueryUint(c, "order_id"),
		Status:             strings.ToUpper(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "查询佣金记录失败", err)
		return
	}
	shared.RespondPage(c, rows, page, pageSize, total)
}
