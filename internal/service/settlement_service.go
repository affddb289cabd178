package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultSettlementConcurrency = 8
	settlementOrphanNote         = "affiliate account deleted before settlement"
)

// 单条结算结果
const (
	settleOutcomeApproved = "approved"
	settleOutcomeRejected = "rejected"
	settleOutcomeSkipped  = "skipped"
)

// SettlementFailure 单条结算失败
type SettlementFailure struct {
	ReferralID uint   `json:"referral_id"`
	Reason     string `json:"reason"`
}

// SettlementResult 结算批次汇总
type SettlementResult struct {
	RunID     string              `json:"run_id"`
	Processed int                 `json:"processed"`
	Approved  int                 `json:"approved"`
	Rejected  int                 `json:"rejected"`
	Skipped   int                 `json:"skipped"`
	Failures  []SettlementFailure `json:"failures"`
}

// SettlementService 冷却期结束后的佣金入账
type SettlementService struct {
	configProvider *ConfigProvider
	affiliateRepo  repository.AffiliateRepository
	referralRepo   repository.ReferralRepository
	ledgerRepo     repository.LedgerRepository
	notifications  *NotificationService
	concurrency    int
	now            func() time.Time
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	configProvider *ConfigProvider,
	affiliateRepo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	ledgerRepo repository.LedgerRepository,
	notifications *NotificationService,
	concurrency int,
) *SettlementService {
	if concurrency <= 0 {
		concurrency = defaultSettlementConcurrency
	}
	return &SettlementService{
		configProvider: configProvider,
		affiliateRepo:  affiliateRepo,
		referralRepo:   referralRepo,
		ledgerRepo:     ledgerRepo,
		notifications:  notifications,
		concurrency:    concurrency,
		now:            time.Now,
	}
}

// SettleDue 结算当前已到期的待结算记录
func (s *SettlementService) SettleDue(ctx context.Context) (SettlementResult, error) {
	var result SettlementResult
	err := runExclusive(ctx, constants.LockKeySettlementRun, func() error {
		snap, err := s.configProvider.Snapshot(ctx)
		if err != nil {
			return err
		}
		result, err = s.SettleDueWithSnapshot(ctx, snap, s.now())
		return err
	})
	return result, err
}

// SettleDueWithSnapshot 按批次结算到期记录，每条记录独立事务，失败汇总返回而不中断批次
func (s *SettlementService) SettleDueWithSnapshot(ctx context.Context, snap *ConfigSnapshot, now time.Time) (SettlementResult, error) {
	log := logger.Named("settlement")
	result := SettlementResult{RunID: uuid.NewString(), Failures: []SettlementFailure{}}

	due, err := s.referralRepo.ListDue(now, snap.Setting.SettlementBatchSize)
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	group := new(errgroup.Group)
	group.SetLimit(s.concurrency)
	for i := range due {
		referral := due[i]
		group.Go(func() error {
			outcome, settleErr := s.settleOne(ctx, referral)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if settleErr != nil {
				result.Failures = append(result.Failures, SettlementFailure{ReferralID: referral.ID, Reason: settleErr.Error()})
				log.Warnw("affiliate_settlement_referral_failed",
					"run_id", result.RunID,
					"referral_id", referral.ID,
					"affiliate_id", referral.AffiliateAccountID,
					"error", settleErr,
				)
				return nil
			}
			switch outcome {
			case settleOutcomeApproved:
				result.Approved++
			case settleOutcomeRejected:
				result.Rejected++
			default:
				result.Skipped++
			}
			return nil
		})
	}
	_ = group.Wait()

	log.Infow("affiliate_settlement_run_completed",
		"run_id", result.RunID,
		"processed", result.Processed,
		"approved", result.Approved,
		"rejected", result.Rejected,
		"skipped", result.Skipped,
		"failed", len(result.Failures),
	)
	return result, nil
}

func (s *SettlementService) settleOne(ctx context.Context, referral models.Referral) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	account, err := s.affiliateRepo.GetAccountByIDUnscoped(referral.AffiliateAccountID)
	if err != nil {
		return "", err
	}
	if account == nil || account.IsDeleted() {
		affected, err := s.referralRepo.TransitionStatus(referral.ID, constants.ReferralStatusPending, constants.ReferralStatusRejected, map[string]interface{}{
			"note":       settlementOrphanNote,
			"updated_at": s.now(),
		})
		if err != nil {
			return "", err
		}
		if affected == 0 {
			return settleOutcomeSkipped, nil
		}
		logger.Warnw("affiliate_settlement_orphan_rejected",
			"referral_id", referral.ID,
			"affiliate_id", referral.AffiliateAccountID,
		)
		return settleOutcomeRejected, nil
	}

	var notification *models.NotificationQueue
	err = s.referralRepo.Transaction(func(tx *gorm.DB) error {
		affiliateRepo := s.affiliateRepo.WithTx(tx)
		locked, err := affiliateRepo.GetAccountByIDForUpdate(referral.AffiliateAccountID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrAffiliateNotFound
		}
		// 持有账户行锁后取时间，流水时间与余额变更顺序一致
		now := s.now()

		affected, err := s.referralRepo.WithTx(tx).TransitionStatus(referral.ID, constants.ReferralStatusPending, constants.ReferralStatusApproved, map[string]interface{}{
			"paid_at":    now,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrReferralAlreadySettled
		}

		amount := referral.CommissionAmount.Decimal
		before := locked.Balance.Decimal.Round(models.MoneyScale)
		after := models.AddMoney(before, amount)
		earnings := models.AddMoney(locked.TotalEarnings.Decimal, amount)
		if err := affiliateRepo.UpdateAccountBalance(locked.ID, models.NewMoneyFromDecimal(after), models.NewMoneyFromDecimal(earnings), now); err != nil {
			return err
		}

		referralID := referral.ID
		if err := s.ledgerRepo.WithTx(tx).Create(&models.AffiliateLedger{
			EntryNo:            uuid.NewString(),
			AffiliateAccountID: locked.ID,
			ReferralID:         &referralID,
			Type:               constants.LedgerTypeCommission,
			Amount:             models.NewMoneyFromDecimal(amount),
			BalanceBefore:      models.NewMoneyFromDecimal(before),
			BalanceAfter:       models.NewMoneyFromDecimal(after),
			Remark:             "commission released for order " + referral.OrderNo,
			CreatedAt:          now,
		}); err != nil {
			return err
		}

		notification, err = s.notifications.EnqueueTx(tx, NotificationInput{
			Recipient: locked.Email,
			Template:  constants.NotificationTemplateCommissionApproved,
			Metadata: models.JSON{
				"order_no":          referral.OrderNo,
				"commission_amount": amount.StringFixed(models.MoneyScale),
				"balance":           after.StringFixed(models.MoneyScale),
				"is_mlm_reward":     referral.IsMlmReward,
			},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrReferralAlreadySettled) {
			return settleOutcomeSkipped, nil
		}
		return "", err
	}
	s.notifications.Kick(notification)
	return settleOutcomeApproved, nil
}
