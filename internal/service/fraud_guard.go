package service

import (
	"context"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

const (
	riskWindow                  = 24 * time.Hour
	riskScoreMax                = 100
	riskClickBurstThreshold     = 500
	riskIPDiversityMinClicks    = 20
	riskConversionMinClicks     = 10
	riskRejectedMinReferrals    = 5
	riskWeightClickBurst        = 30
	riskWeightLowIPDiversity    = 25
	riskWeightConversionRatio   = 25
	riskWeightConversionNoClick = 15
	riskWeightRejectedShare     = 20
)

// VelocityResult 速率检查结果
type VelocityResult struct {
	Exceeded    bool
	Window      time.Duration
	Conversions int64
	Clicks      int64
}

// RiskAssessment 风险评分结果
type RiskAssessment struct {
	AffiliateID uint
	Score       int
	Flags       models.JSON
}

// RiskRefreshResult 风险分刷新汇总
type RiskRefreshResult struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// FraudGuard 反作弊检查
type FraudGuard struct {
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	now           func() time.Time
}

// NewFraudGuard 创建反作弊检查
func NewFraudGuard(affiliateRepo repository.AffiliateRepository, referralRepo repository.ReferralRepository) *FraudGuard {
	return &FraudGuard{
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		now:           time.Now,
	}
}

// SelfReferralInput 买家身份
type SelfReferralInput struct {
	UserID uint
	Email  string
	IP     string
}

// DetectSelfReferral 买家用户、邮箱或 IP 与推广账户自身身份精确匹配即判定为自推
func (g *FraudGuard) DetectSelfReferral(affiliateID uint, buyer SelfReferralInput) (bool, error) {
	account, err := g.affiliateRepo.GetAccountByIDUnscoped(affiliateID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}
	return matchesAffiliateIdentity(account, buyer), nil
}

func matchesAffiliateIdentity(account *models.AffiliateAccount, buyer SelfReferralInput) bool {
	if buyer.UserID > 0 && account.UserID == buyer.UserID {
		return true
	}
	email := strings.ToLower(strings.TrimSpace(buyer.Email))
	if email != "" && email == strings.ToLower(strings.TrimSpace(account.Email)) {
		return true
	}
	ip := strings.TrimSpace(buyer.IP)
	if ip == "" {
		return false
	}
	return ip == strings.TrimSpace(account.SignupIP) || ip == strings.TrimSpace(account.LastLoginIP)
}

// CheckVelocity 统计窗口内转化与点击数，任一超过阈值即判定异常
func (g *FraudGuard) CheckVelocity(setting AffiliateSetting, affiliateID uint) (VelocityResult, error) {
	window := time.Duration(setting.VelocityWindowMinutes) * time.Minute
	result := VelocityResult{Window: window}
	if window <= 0 || (setting.VelocityMaxConversions <= 0 && setting.VelocityMaxClicks <= 0) {
		return result, nil
	}
	since := g.now().Add(-window)

	if setting.VelocityMaxConversions > 0 {
		conversions, err := g.referralRepo.CountCreatedSince(affiliateID, since)
		if err != nil {
			return result, err
		}
		result.Conversions = conversions
		if conversions > int64(setting.VelocityMaxConversions) {
			result.Exceeded = true
		}
	}
	if setting.VelocityMaxClicks > 0 {
		clicks, err := g.affiliateRepo.CountClicksSince(affiliateID, since)
		if err != nil {
			return result, err
		}
		result.Clicks = clicks
		if clicks > int64(setting.VelocityMaxClicks) {
			result.Exceeded = true
		}
	}
	return result, nil
}

// AssessRisk 计算风险分（0-100），各信号分值叠加
func (g *FraudGuard) AssessRisk(affiliateID uint, now time.Time) (RiskAssessment, error) {
	since := now.Add(-riskWindow)
	clicks, err := g.affiliateRepo.CountClicksSince(affiliateID, since)
	if err != nil {
		return RiskAssessment{}, err
	}
	distinctIPs, err := g.affiliateRepo.CountDistinctClickIPsSince(affiliateID, since)
	if err != nil {
		return RiskAssessment{}, err
	}
	conversions, err := g.referralRepo.CountCreatedSince(affiliateID, since)
	if err != nil {
		return RiskAssessment{}, err
	}
	total, err := g.referralRepo.CountByAccountAndStatuses(affiliateID, nil)
	if err != nil {
		return RiskAssessment{}, err
	}
	rejected, err := g.referralRepo.CountByAccountAndStatuses(affiliateID, []string{constants.ReferralStatusRejected})
	if err != nil {
		return RiskAssessment{}, err
	}

	score := 0
	flags := models.JSON{
		"clicks_24h":       clicks,
		"distinct_ips_24h": distinctIPs,
		"conversions_24h":  conversions,
		"referrals_total":  total,
		"rejected_total":   rejected,
	}
	if clicks >= riskClickBurstThreshold {
		score += riskWeightClickBurst
		flags["click_burst"] = true
	}
	if clicks >= riskIPDiversityMinClicks && distinctIPs*5 < clicks {
		score += riskWeightLowIPDiversity
		flags["low_ip_diversity"] = true
	}
	switch {
	case clicks >= riskConversionMinClicks && conversions*2 > clicks:
		score += riskWeightConversionRatio
		flags["conversion_ratio_anomaly"] = true
	case clicks == 0 && conversions > 0:
		score += riskWeightConversionNoClick
		flags["conversion_without_click"] = true
	}
	if total >= riskRejectedMinReferrals && rejected*10 >= total*3 {
		score += riskWeightRejectedShare
		flags["rejected_share_high"] = true
	}

	return RiskAssessment{
		AffiliateID: affiliateID,
		Score:       clampInt(score, 0, riskScoreMax),
		Flags:       flags,
	}, nil
}

// UpdateRiskScore 重新计算并写入单个推广账户的风险分
func (g *FraudGuard) UpdateRiskScore(affiliateID uint) (RiskAssessment, error) {
	now := g.now()
	assessment, err := g.AssessRisk(affiliateID, now)
	if err != nil {
		return assessment, err
	}
	if err := g.affiliateRepo.UpdateRiskScore(affiliateID, assessment.Score, assessment.Flags, now); err != nil {
		return assessment, err
	}
	return assessment, nil
}

// RefreshRiskScores 刷新近 24 小时有点击的推广账户风险分，单个失败不影响其余
func (g *FraudGuard) RefreshRiskScores(ctx context.Context) (RiskRefreshResult, error) {
	var result RiskRefreshResult
	err := runExclusive(ctx, constants.LockKeyRiskRefresh, func() error {
		var err error
		result, err = g.refreshRiskScores(ctx)
		return err
	})
	return result, err
}

func (g *FraudGuard) refreshRiskScores(ctx context.Context) (RiskRefreshResult, error) {
	log := logger.Named("fraud_guard")
	result := RiskRefreshResult{}
	ids, err := g.affiliateRepo.ListAccountIDsWithClicksSince(g.now().Add(-riskWindow))
	if err != nil {
		return result, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		assessment, err := g.UpdateRiskScore(id)
		if err != nil {
			result.Failed++
			log.Warnw("affiliate_risk_score_update_failed",
				"affiliate_id", id,
				"error", err,
			)
			continue
		}
		result.Updated++
		log.Debugw("affiliate_risk_score_updated",
			"affiliate_id", id,
			"score", assessment.Score,
		)
	}
	log.Infow("affiliate_risk_refresh_completed",
		"processed", result.Processed,
		"updated", result.Updated,
		"failed", result.Failed,
	)
	return result, nil
}
