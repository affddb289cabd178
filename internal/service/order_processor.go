package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"gorm.io/gorm"
)

// OrderOutcomeCode 订单佣金处理结果码
type OrderOutcomeCode string

// 订单佣金处理结果码
const (
	OutcomeAlreadyProcessed  OrderOutcomeCode = "ALREADY_PROCESSED"
	OutcomeNoAffiliate       OrderOutcomeCode = "NO_AFFILIATE"
	OutcomeAffiliateInactive OrderOutcomeCode = "AFFILIATE_INACTIVE"
	OutcomeProgramDisabled   OrderOutcomeCode = "PROGRAM_DISABLED"
	OutcomeFraudSelfReferral OrderOutcomeCode = "FRAUD_SELF_REFERRAL"
	OutcomeFraudVelocity     OrderOutcomeCode = "FRAUD_VELOCITY"
	OutcomeZeroCommission    OrderOutcomeCode = "ZERO_COMMISSION"
	OutcomeOrderNotFound     OrderOutcomeCode = "ORDER_NOT_FOUND"
)

// OrderProcessResult 订单佣金处理结果
type OrderProcessResult struct {
	Success           bool             `json:"success"`
	Commission        models.Money     `json:"commission"`
	Code              OrderOutcomeCode `json:"error,omitempty"`
	Reason            string           `json:"reason,omitempty"`
	OrderID           uint             `json:"order_id"`
	AffiliateID       uint             `json:"affiliate_id,omitempty"`
	ReferralID        uint             `json:"referral_id,omitempty"`
	MLMReferrals      int              `json:"mlm_referrals"`
	AttributionSource string           `json:"attribution_source,omitempty"`
	SnapshotVersion   string           `json:"snapshot_version,omitempty"`
}

func orderOutcome(orderID uint, code OrderOutcomeCode, reason string) OrderProcessResult {
	return OrderProcessResult{
		Success:    false,
		Commission: models.ZeroMoney(),
		Code:       code,
		Reason:     reason,
		OrderID:    orderID,
	}
}

// OrderProcessorDeps 订单佣金处理依赖
type OrderProcessorDeps struct {
	ConfigProvider *ConfigProvider
	Resolver       *CommissionResolver
	FraudGuard     *FraudGuard
	MLM            *MLMDistributor
	Notifications  *NotificationService
	OrderRepo      repository.OrderRepository
	ProductRepo    repository.ProductRepository
	UserRepo       repository.UserRepository
	AffiliateRepo  repository.AffiliateRepository
	ReferralRepo   repository.ReferralRepository
	AnalyticsRepo  repository.AnalyticsRepository
}

// OrderProcessor 单个订单的佣金归因与入账编排
type OrderProcessor struct {
	deps OrderProcessorDeps
	now  func() time.Time
}

// NewOrderProcessor 创建订单佣金处理器
func NewOrderProcessor(deps OrderProcessorDeps) *OrderProcessor {
	return &OrderProcessor{deps: deps, now: time.Now}
}

// Process 使用当前配置快照处理订单
func (p *OrderProcessor) Process(ctx context.Context, orderID uint) (OrderProcessResult, error) {
	snap, err := p.deps.ConfigProvider.Snapshot(ctx)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	return p.ProcessWithSnapshot(ctx, snap, orderID)
}

// ProcessWithSnapshot 使用调用方给定的配置快照处理订单，策略性结果以结果码返回，仅基础设施错误返回 error
func (p *OrderProcessor) ProcessWithSnapshot(ctx context.Context, snap *ConfigSnapshot, orderID uint) (OrderProcessResult, error) {
	log := logger.Named("order_processor")
	setting := snap.Setting

	order, err := p.deps.OrderRepo.GetByIDWithDetails(orderID)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	if order == nil {
		return orderOutcome(orderID, OutcomeOrderNotFound, "order not found"), nil
	}
	if len(order.Referrals) > 0 {
		log.Debugw("affiliate_order_already_processed", "order_id", orderID)
		return orderOutcome(orderID, OutcomeAlreadyProcessed, "referrals already exist for order"), nil
	}

	buyer, err := p.loadBuyer(order)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	account, source, err := p.resolveAffiliate(order, buyer)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}

	if !setting.Enabled {
		log.Debugw("affiliate_program_disabled", "order_id", orderID)
		return orderOutcome(orderID, OutcomeProgramDisabled, "affiliate program disabled"), nil
	}
	if account == nil {
		log.Debugw("affiliate_order_no_affiliate", "order_id", orderID)
		return orderOutcome(orderID, OutcomeNoAffiliate, "no affiliate attributed"), nil
	}
	if account.Status != constants.AffiliateStatusActive {
		log.Debugw("affiliate_order_inactive_affiliate", "order_id", orderID, "affiliate_id", account.ID, "status", account.Status)
		result := orderOutcome(orderID, OutcomeAffiliateInactive, "affiliate status "+account.Status)
		result.AffiliateID = account.ID
		return result, nil
	}

	buyerEmail := strings.TrimSpace(order.GuestEmail)
	if buyer != nil {
		buyerEmail = buyer.Email
	}
	if !setting.AllowSelfReferral {
		selfReferral, err := p.deps.FraudGuard.DetectSelfReferral(account.ID, SelfReferralInput{
			UserID: order.UserID,
			Email:  buyerEmail,
			IP:     order.ClientIP,
		})
		if err != nil {
			return orderOutcome(orderID, "", ""), err
		}
		if selfReferral {
			log.Warnw("affiliate_fraud_rejected",
				"reason", OutcomeFraudSelfReferral,
				"order_id", orderID,
				"order_no", order.OrderNo,
				"affiliate_id", account.ID,
				"buyer_user_id", order.UserID,
				"buyer_email", buyerEmail,
				"buyer_ip", order.ClientIP,
				"attribution_source", source,
			)
			result := orderOutcome(orderID, OutcomeFraudSelfReferral, "buyer identity matches affiliate")
			result.AffiliateID = account.ID
			return result, nil
		}
	}
	velocity, err := p.deps.FraudGuard.CheckVelocity(setting, account.ID)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	if velocity.Exceeded {
		log.Warnw("affiliate_fraud_rejected",
			"reason", OutcomeFraudVelocity,
			"order_id", orderID,
			"order_no", order.OrderNo,
			"affiliate_id", account.ID,
			"window", velocity.Window.String(),
			"conversions", velocity.Conversions,
			"clicks", velocity.Clicks,
			"max_conversions", setting.VelocityMaxConversions,
			"max_clicks", setting.VelocityMaxClicks,
		)
		result := orderOutcome(orderID, OutcomeFraudVelocity, "conversion or click velocity exceeded")
		result.AffiliateID = account.ID
		return result, nil
	}

	lines := buildCommissionLines(order)
	customerType, err := p.classifyCustomer(order)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	rc, err := p.deps.Resolver.BuildContext(snap, account, lines, order.TotalAmount.Decimal, customerType)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}
	commission := ComputeOrderCommission(snap, rc, lines)

	if commission.Total.IsZero() && !setting.ZeroValueReferrals {
		log.Debugw("affiliate_order_zero_commission", "order_id", orderID, "affiliate_id", account.ID)
		result := orderOutcome(orderID, OutcomeZeroCommission, "commission is zero")
		result.AffiliateID = account.ID
		return result, nil
	}

	products, err := p.loadProducts(setting, lines)
	if err != nil {
		return orderOutcome(orderID, "", ""), err
	}

	now := p.now()
	availableAt := now.AddDate(0, 0, setting.HoldingPeriodDays)
	direct := models.Referral{
		AffiliateAccountID: account.ID,
		OrderID:            order.ID,
		OrderNo:            order.OrderNo,
		GrossAmount:        order.TotalAmount,
		NetAmount:          models.NewMoneyFromDecimal(commission.Base),
		CommissionAmount:   models.NewMoneyFromDecimal(commission.Total),
		Status:             constants.ReferralStatusPending,
		AttributionSource:  source,
		CalculationLog:     commission.CalculationLog(),
		AvailableAt:        availableAt,
	}

	var mlmReferrals []models.Referral
	var notification *models.NotificationQueue
	err = p.deps.ReferralRepo.Transaction(func(tx *gorm.DB) error {
		if err := p.deps.ReferralRepo.WithTx(tx).Create(&direct); err != nil {
			return err
		}
		if setting.LifetimeCommissions && buyer != nil {
			if _, err := p.deps.UserRepo.WithTx(tx).BindReferredByIfEmpty(buyer.ID, account.ID, now); err != nil {
				return err
			}
		}
		created, err := p.deps.MLM.Distribute(tx, MLMDistributionInput{
			Setting:           setting,
			Order:             order,
			DirectAccount:     account,
			AttributionSource: source,
			Commission:        commission,
			Products:          products,
			AvailableAt:       availableAt,
		})
		if err != nil {
			return err
		}
		mlmReferrals = created

		if err := p.deps.AnalyticsRepo.WithTx(tx).IncrementDaily(&models.AffiliateAnalyticsSummary{
			AffiliateAccountID: account.ID,
			SummaryDate:        now.Format("2006-01-02"),
			Conversions:        1,
			Revenue:            order.TotalAmount,
			Commission:         models.NewMoneyFromDecimal(commission.Total),
			UpdatedAt:          now,
		}); err != nil {
			return err
		}

		notification, err = p.deps.Notifications.EnqueueTx(tx, NotificationInput{
			Recipient: account.Email,
			Template:  constants.NotificationTemplateNewReferral,
			Metadata: models.JSON{
				"order_no":            order.OrderNo,
				"commission_amount":   commission.Total.StringFixed(models.MoneyScale),
				"holding_period_days": setting.HoldingPeriodDays,
				"available_at":        availableAt.Format(time.RFC3339),
			},
		})
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			log.Debugw("affiliate_order_concurrent_duplicate", "order_id", orderID, "affiliate_id", account.ID)
			result := orderOutcome(orderID, OutcomeAlreadyProcessed, "referral created concurrently")
			result.AffiliateID = account.ID
			return result, nil
		}
		return orderOutcome(orderID, "", ""), fmt.Errorf("persist referral for order %d: %w", orderID, err)
	}
	p.deps.Notifications.Kick(notification)

	log.Infow("affiliate_order_processed",
		"order_id", orderID,
		"affiliate_id", account.ID,
		"referral_id", direct.ID,
		"commission", commission.Total.StringFixed(models.MoneyScale),
		"attribution_source", source,
		"mlm_referrals", len(mlmReferrals),
		"snapshot_version", snap.Version,
	)
	return OrderProcessResult{
		Success:           true,
		Commission:        models.NewMoneyFromDecimal(commission.Total),
		OrderID:           orderID,
		AffiliateID:       account.ID,
		ReferralID:        direct.ID,
		MLMReferrals:      len(mlmReferrals),
		AttributionSource: source,
		SnapshotVersion:   snap.Version,
	}, nil
}

func (p *OrderProcessor) loadBuyer(order *models.Order) (*models.User, error) {
	if order.UserID == 0 {
		return nil, nil
	}
	return p.deps.UserRepo.GetByID(order.UserID)
}

// resolveAffiliate 直接归因（推广账户或推广码）优先，其次终身绑定
func (p *OrderProcessor) resolveAffiliate(order *models.Order, buyer *models.User) (*models.AffiliateAccount, string, error) {
	if order.AffiliateAccountID != nil && *order.AffiliateAccountID != 0 {
		account, err := p.deps.AffiliateRepo.GetAccountByID(*order.AffiliateAccountID)
		return account, constants.AttributionSourceCookie, err
	}
	if code := normalizeAffiliateCode(order.AffiliateCode); code != "" {
		account, err := p.deps.AffiliateRepo.GetAccountByCode(code)
		return account, constants.AttributionSourceCookie, err
	}
	if buyer != nil && buyer.ReferredByAffiliateID != nil {
		account, err := p.deps.AffiliateRepo.GetAccountByID(*buyer.ReferredByAffiliateID)
		return account, constants.AttributionSourceLifetime, err
	}
	return nil, "", nil
}

// classifyCustomer 仅统计本单之前的有效订单，无历史订单即为新客
func (p *OrderProcessor) classifyCustomer(order *models.Order) (string, error) {
	prior, err := p.deps.OrderRepo.CountPriorOrders(order)
	if err != nil {
		return "", err
	}
	if prior == 0 {
		return constants.CustomerTypeNew, nil
	}
	return constants.CustomerTypeReturning, nil
}

func (p *OrderProcessor) loadProducts(setting AffiliateSetting, lines []CommissionLine) (map[uint]models.Product, error) {
	if !setting.MLMEnabled || setting.MLMCommissionBasis == constants.MLMBasisSales || p.deps.ProductRepo == nil {
		return map[uint]models.Product{}, nil
	}
	ids := make([]uint, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return p.deps.ProductRepo.MapByIDs(ids)
}

func buildCommissionLines(order *models.Order) []CommissionLine {
	lines := make([]CommissionLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, CommissionLine{
			OrderItemID:    item.ID,
			ProductID:      item.ProductID,
			CategoryID:     item.CategoryID,
			Quantity:       item.Quantity,
			LineTotal:      item.LineTotal.Decimal,
			TaxAmount:      item.TaxAmount.Decimal,
			ShippingAmount: item.ShippingAmount.Decimal,
		})
	}
	return lines
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
