package service

import (
	"context"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"gorm.io/gorm"
)

// TierPromotion 单次晋升
type TierPromotion struct {
	AffiliateID uint   `json:"affiliate_id"`
	TierID      uint   `json:"tier_id"`
	TierName    string `json:"tier_name"`
}

// TierEvaluationResult 等级评估汇总
type TierEvaluationResult struct {
	Evaluated  int             `json:"evaluated"`
	Promotions []TierPromotion `json:"promotions"`
	Failed     int             `json:"failed"`
}

// TierEvaluator 推广等级晋升评估
type TierEvaluator struct {
	configRepo    repository.CommissionConfigRepository
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	notifications *NotificationService
	now           func() time.Time
}

// NewTierEvaluator 创建等级评估器
func NewTierEvaluator(
	configRepo repository.CommissionConfigRepository,
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	notifications *NotificationService,
) *TierEvaluator {
	return &TierEvaluator{
		configRepo:    configRepo,
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		notifications: notifications,
		now:           time.Now,
	}
}

// Evaluate 从最高门槛等级开始逐级评估，同一轮已晋升的账户不再被低等级覆盖
func (e *TierEvaluator) Evaluate(ctx context.Context) (TierEvaluationResult, error) {
	var result TierEvaluationResult
	err := runExclusive(ctx, constants.LockKeyTierEvaluate, func() error {
		var err error
		result, err = e.evaluate(ctx)
		return err
	})
	return result, err
}

func (e *TierEvaluator) evaluate(ctx context.Context) (TierEvaluationResult, error) {
	log := logger.Named("tier_evaluator")
	result := TierEvaluationResult{Promotions: []TierPromotion{}}

	tiers, err := e.configRepo.ListTiersByThresholdDesc()
	if err != nil {
		return result, err
	}
	promoted := map[uint]struct{}{}

	for _, tier := range tiers {
		candidates, err := e.affiliateRepo.ListTierCandidates(tier)
		if err != nil {
			log.Warnw("affiliate_tier_candidates_failed", "tier_id", tier.ID, "error", err)
			continue
		}
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			account := candidates[i]
			if _, ok := promoted[account.ID]; ok {
				continue
			}
			result.Evaluated++

			ok, err := e.promoteIfEligible(&account, tier)
			if err != nil {
				result.Failed++
				log.Warnw("affiliate_tier_promotion_failed",
					"affiliate_id", account.ID,
					"tier_id", tier.ID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
			promoted[account.ID] = struct{}{}
			result.Promotions = append(result.Promotions, TierPromotion{
				AffiliateID: account.ID,
				TierID:      tier.ID,
				TierName:    tier.Name,
			})
			log.Infow("affiliate_tier_promoted",
				"affiliate_id", account.ID,
				"tier_id", tier.ID,
				"tier_name", tier.Name,
			)
		}
	}
	return result, nil
}

func (e *TierEvaluator) promoteIfEligible(account *models.AffiliateAccount, tier models.CommissionTier) (bool, error) {
	if tier.MinSalesCount > 0 {
		count, err := e.referralRepo.CountByAccountAndStatuses(account.ID, []string{
			constants.ReferralStatusApproved,
			constants.ReferralStatusPaid,
		})
		if err != nil {
			return false, err
		}
		if count < int64(tier.MinSalesCount) {
			return false, nil
		}
	}

	now := e.now()
	var notification *models.NotificationQueue
	err := e.affiliateRepo.Transaction(func(tx *gorm.DB) error {
		if err := e.affiliateRepo.WithTx(tx).UpdateAccountTier(account.ID, tier.ID, now); err != nil {
			return err
		}
		var err error
		notification, err = e.notifications.EnqueueTx(tx, NotificationInput{
			Recipient: account.Email,
			Template:  constants.NotificationTemplateTierUpgraded,
			Metadata: models.JSON{
				"tier_id":   tier.ID,
				"tier_name": tier.Name,
			},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	e.notifications.Kick(notification)
	return true, nil
}
