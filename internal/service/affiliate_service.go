package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
)

const (
	affiliateClickDedupeWindow = 10 * time.Minute
	affiliateRejectNoteMaxLen  = 500
)

// AffiliateService 推广账户运营服务（点击、订单冲正、流水校验）
type AffiliateService struct {
	repo           repository.AffiliateRepository
	referralRepo   repository.ReferralRepository
	ledgerRepo     repository.LedgerRepository
	settingService *SettingService
}

// NewAffiliateService 创建推广账户运营服务
func NewAffiliateService(
	repo repository.AffiliateRepository,
	referralRepo repository.ReferralRepository,
	ledgerRepo repository.LedgerRepository,
	settingService *SettingService,
) *AffiliateService {
	return &AffiliateService{
		repo:           repo,
		referralRepo:   referralRepo,
		ledgerRepo:     ledgerRepo,
		settingService: settingService,
	}
}

// AffiliateTrackClickInput 推广点击记录输入
type AffiliateTrackClickInput struct {
	AffiliateCode string
	VisitorKey    string
	LandingPath   string
	ClientIP      string
	UserAgent     string
}

// LedgerVerification 流水回放校验结果
type LedgerVerification struct {
	AffiliateID   uint         `json:"affiliate_id"`
	Entries       int          `json:"entries"`
	StoredBalance models.Money `json:"stored_balance"`
	ReplayBalance models.Money `json:"replay_balance"`
	Consistent    bool         `json:"consistent"`
	Problems      []string     `json:"problems"`
}

// TrackClick 记录推广点击
func (s *AffiliateService) TrackClick(input AffiliateTrackClickInput) error {
	code := normalizeAffiliateCode(input.AffiliateCode)
	if code == "" {
		return nil
	}
	setting, err := s.settingService.GetAffiliateSetting()
	if err != nil {
		return err
	}
	if !setting.Enabled {
		return nil
	}
	account, err := s.repo.GetAccountByCode(code)
	if err != nil {
		return err
	}
	if account == nil || account.Status != constants.AffiliateStatusActive {
		return nil
	}
	visitorKey := strings.TrimSpace(input.VisitorKey)
	landingPath := strings.TrimSpace(input.LandingPath)
	if visitorKey != "" {
		duplicated, err := s.repo.HasRecentClick(account.ID, visitorKey, landingPath, time.Now().Add(-affiliateClickDedupeWindow))
		if err != nil {
			return err
		}
		if duplicated {
			return nil
		}
	}

	return s.repo.CreateClick(&models.AffiliateClick{
		AffiliateAccountID: account.ID,
		VisitorKey:         visitorKey,
		LandingPath:        landingPath,
		ClientIP:           strings.TrimSpace(input.ClientIP),
		UserAgent:          strings.TrimSpace(input.UserAgent),
		CreatedAt:          time.Now(),
	})
}

// RejectOrderReferrals 订单退款/取消时驳回其仍处于待结算的佣金，已入账记录不受影响
func (s *AffiliateService) RejectOrderReferrals(orderID uint, reason string) (int64, error) {
	if orderID == 0 {
		return 0, ErrOrderNotFound
	}
	note := strings.TrimSpace(reason)
	if note == "" {
		note = "order reversed"
	}
	if len(note) > affiliateRejectNoteMaxLen {
		note = note[:affiliateRejectNoteMaxLen]
	}
	affected, err := s.referralRepo.TransitionOrderStatus(orderID, constants.ReferralStatusPending, constants.ReferralStatusRejected, map[string]interface{}{
		"note":       note,
		"updated_at": time.Now(),
	})
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		logger.Infow("affiliate_order_referrals_rejected",
			"order_id", orderID,
			"rejected", affected,
			"reason", note,
		)
	}
	return affected, nil
}

// VerifyLedger 按创建顺序回放流水，校验前后余额链与账户余额一致
func (s *AffiliateService) VerifyLedger(affiliateID uint) (*LedgerVerification, error) {
	account, err := s.repo.GetAccountByIDUnscoped(affiliateID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAffiliateNotFound
	}
	entries, err := s.ledgerRepo.ListByAccount(affiliateID)
	if err != nil {
		return nil, err
	}

	report := &LedgerVerification{
		AffiliateID:   affiliateID,
		Entries:       len(entries),
		StoredBalance: account.Balance,
		Problems:      []string{},
	}
	var running decimal.Decimal
	for i, entry := range entries {
		before := entry.BalanceBefore.Decimal
		after := entry.BalanceAfter.Decimal
		if i == 0 {
			running = before
		} else if models.CompareMoney(before, running) != 0 {
			report.Problems = append(report.Problems, fmt.Sprintf("entry %s balance_before %s does not chain from %s",
				entry.EntryNo, before.StringFixed(models.MoneyScale), running.StringFixed(models.MoneyScale)))
		}
		if models.CompareMoney(models.AddMoney(before, entry.Amount.Decimal), after) != 0 {
			report.Problems = append(report.Problems, fmt.Sprintf("entry %s balance_after %s != balance_before %s + amount %s",
				entry.EntryNo, after.StringFixed(models.MoneyScale), before.StringFixed(models.MoneyScale), entry.Amount.Decimal.StringFixed(models.MoneyScale)))
		}
		running = models.AddMoney(running, entry.Amount.Decimal)
	}
	if len(entries) == 0 {
		running = account.Balance.Decimal
	}
	report.ReplayBalance = models.NewMoneyFromDecimal(running)
	if models.CompareMoney(running, account.Balance.Decimal) != 0 {
		report.Problems = append(report.Problems, fmt.Sprintf("replayed balance %s != stored balance %s",
			running.StringFixed(models.MoneyScale), account.Balance.Decimal.StringFixed(models.MoneyScale)))
	}
	report.Consistent = len(report.Problems) == 0
	if !report.Consistent {
		logger.Warnw("affiliate_ledger_mismatch",
			"affiliate_id", affiliateID,
			"problems", report.Problems,
		)
	}
	return report, nil
}

// ListReferrals 分页查询佣金记录
func (s *AffiliateService) ListReferrals(filter repository.ReferralListFilter) ([]models.Referral, int64, error) {
	return s.referralRepo.List(filter)
}

func normalizeAffiliateCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
