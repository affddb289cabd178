package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type commissionTestEnv struct {
	db            *gorm.DB
	settings      *SettingService
	provider      *ConfigProvider
	fraud         *FraudGuard
	processor     *OrderProcessor
	settlement    *SettlementService
	tiers         *TierEvaluator
	affiliates    *AffiliateService
	notifications *NotificationService
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
	ledgerRepo    repository.LedgerRepository
	configRepo    repository.CommissionConfigRepository
}

func setupCommissionTest(t *testing.T) *commissionTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:commission_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	queueClient, err := queue.NewClient(nil)
	if err != nil {
		t.Fatalf("new queue client failed: %v", err)
	}

	settings := NewSettingService(repository.NewSettingRepository(db))
	affiliateRepo := repository.NewAffiliateRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	configRepo := repository.NewCommissionConfigRepository(db)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), queueClient)
	provider := NewConfigProvider(settings, configRepo, time.Minute)
	fraud := NewFraudGuard(affiliateRepo, referralRepo)

	processor := NewOrderProcessor(OrderProcessorDeps{
		ConfigProvider: provider,
		Resolver:       NewCommissionResolver(configRepo),
		FraudGuard:     fraud,
		MLM:            NewMLMDistributor(affiliateRepo, referralRepo),
		Notifications:  notifications,
		OrderRepo:      repository.NewOrderRepository(db),
		ProductRepo:    repository.NewProductRepository(db),
		UserRepo:       repository.NewUserRepository(db),
		AffiliateRepo:  affiliateRepo,
		ReferralRepo:   referralRepo,
		AnalyticsRepo:  repository.NewAnalyticsRepository(db),
	})

	return &commissionTestEnv{
		db:            db,
		settings:      settings,
		provider:      provider,
		fraud:         fraud,
		processor:     processor,
		settlement:    NewSettlementService(provider, affiliateRepo, referralRepo, ledgerRepo, notifications, 4),
		tiers:         NewTierEvaluator(configRepo, affiliateRepo, referralRepo, notifications),
		affiliates:    NewAffiliateService(affiliateRepo, referralRepo, ledgerRepo, settings),
		notifications: notifications,
		affiliateRepo: affiliateRepo,
		referralRepo:  referralRepo,
		ledgerRepo:    ledgerRepo,
		configRepo:    configRepo,
	}
}

func (e *commissionTestEnv) applySetting(t *testing.T, setting AffiliateSetting) {
	t.Helper()
	if _, err := e.settings.UpdateAffiliateSetting(setting); err != nil {
		t.Fatalf("update affiliate setting failed: %v", err)
	}
}

func enabledTestSetting() AffiliateSetting {
	setting := AffiliateDefaultSetting()
	setting.Enabled = true
	setting.HoldingPeriodDays = 30
	setting.GlobalDefaultRate = decimal.NewFromInt(10)
	return setting
}

func money(value string) models.Money {
	return models.NewMoneyFromDecimal(decimal.RequireFromString(value))
}

func createTestAffiliate(t *testing.T, db *gorm.DB, code string, mutate func(*models.AffiliateAccount)) *models.AffiliateAccount {
	t.Helper()
	account := &models.AffiliateAccount{
		AffiliateCode: code,
		Email:         fmt.Sprintf("%s@affiliates.example.com", code),
		Status:        constants.AffiliateStatusActive,
		Balance:       models.ZeroMoney(),
		TotalEarnings: models.ZeroMoney(),
	}
	if mutate != nil {
		mutate(account)
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return account
}

type testOrderLine struct {
	productID  uint
	categoryID uint
	quantity   int
	lineTotal  string
	tax        string
	shipping   string
}

func createTestCommissionOrder(t *testing.T, db *gorm.DB, order models.Order, lines ...testOrderLine) *models.Order {
	t.Helper()
	if order.OrderNo == "" {
		order.OrderNo = fmt.Sprintf("ORD-%d", time.Now().UnixNano())
	}
	if order.Status == "" {
		order.Status = constants.OrderStatusPaid
	}
	for _, line := range lines {
		tax := line.tax
		if tax == "" {
			tax = "0"
		}
		shipping := line.shipping
		if shipping == "" {
			shipping = "0"
		}
		quantity := line.quantity
		if quantity == 0 {
			quantity = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      line.productID,
			CategoryID:     line.categoryID,
			Quantity:       quantity,
			LineTotal:      money(line.lineTotal),
			TaxAmount:      money(tax),
			ShippingAmount: money(shipping),
		})
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return &order
}

func countReferrals(t *testing.T, db *gorm.DB, orderID uint) int64 {
	t.Helper()
	var total int64
	if err := db.Model(&models.Referral{}).Where("order_id = ?", orderID).Count(&total).Error; err != nil {
		t.Fatalf("count referrals failed: %v", err)
	}
	return total
}

func directReferral(t *testing.T, db *gorm.DB, orderID uint) models.Referral {
	t.Helper()
	var row models.Referral
	if err := db.Where("order_id = ? AND is_mlm_reward = ?", orderID, false).First(&row).Error; err != nil {
		t.Fatalf("load direct referral failed: %v", err)
	}
	return row
}

func TestProcessOrderProductUserOverrideExcludesTaxAndShipping(t *testing.T) {
	env := setupCommissionTest(t)
	setting := enabledTestSetting()
	setting.ExcludeTax = true
	setting.ExcludeShipping = true
	env.applySetting(t, setting)

	affiliate := createTestAffiliate(t, env.db, "AFF100", nil)
	override := models.ProductCommissionRate{
		ProductID:          1,
		AffiliateAccountID: &affiliate.ID,
		Rate:               pct("15"),
		Type:               constants.CommissionTypePercentage,
	}
	if err := env.db.Create(&override).Error; err != nil {
		t.Fatalf("create override failed: %v", err)
	}
	order := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "buyer@example.com",
		ClientIP:           "203.0.113.7",
		SubtotalAmount:     money("100"),
		TaxAmount:          money("10"),
		ShippingAmount:     money("5"),
		TotalAmount:        money("115"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 1, lineTotal: "115", tax: "10", shipping: "5"})

	before := time.Now()
	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("process order failed: %v", err)
	}
	if !result.Success || result.Code != "" {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Commission.String() != "15.00" {
		t.Fatalf("expected commission 15.00, got %s", result.Commission.String())
	}
	if result.AttributionSource != constants.AttributionSourceCookie {
		t.Fatalf("expected COOKIE attribution, got %s", result.AttributionSource)
	}

	referral := directReferral(t, env.db, order.ID)
	if referral.Status != constants.ReferralStatusPending {
		t.Fatalf("expected PENDING, got %s", referral.Status)
	}
	if !referral.NetAmount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected base 100, got %s", referral.NetAmount.String())
	}
	if !referral.CommissionAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected commission 15, got %s", referral.CommissionAmount.String())
	}
	if len(referral.CalculationLog) != 1 || referral.CalculationLog[0].Source != constants.RateSourceProductUserOverride {
		t.Fatalf("expected PRODUCT_USER_OVERRIDE log, got %+v", referral.CalculationLog)
	}
	if referral.CalculationLog[0].Base != "100.00" {
		t.Fatalf("expected logged base 100.00, got %s", referral.CalculationLog[0].Base)
	}
	expectedAvailable := before.AddDate(0, 0, 30)
	if referral.AvailableAt.Before(expectedAvailable.Add(-time.Minute)) || referral.AvailableAt.After(expectedAvailable.Add(time.Minute)) {
		t.Fatalf("expected available_at about %s, got %s", expectedAvailable, referral.AvailableAt)
	}

	summary, err := repository.NewAnalyticsRepository(env.db).GetDaily(affiliate.ID, time.Now().Format("2006-01-02"))
	if err != nil || summary == nil {
		t.Fatalf("expected analytics summary, err=%v", err)
	}
	if summary.Conversions != 1 || !summary.Commission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected analytics summary: %+v", summary)
	}

	queued, err := repository.NewNotificationRepository(env.db).ListByTemplate(constants.NotificationTemplateNewReferral)
	if err != nil {
		t.Fatalf("list notifications failed: %v", err)
	}
	if len(queued) != 1 || queued[0].Recipient != affiliate.Email {
		t.Fatalf("expected one new referral notification, got %+v", queued)
	}
}

func TestProcessOrderIsIdempotent(t *testing.T) {
	env := setupCommissionTest(t)
	env.applySetting(t, enabledTestSetting())

	affiliate := createTestAffiliate(t, env.db, "AFF200", nil)
	order := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "repeat@example.com",
		TotalAmount:        money("50"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 2, lineTotal: "50"})

	first, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || !first.Success {
		t.Fatalf("expected first run success, got %+v err=%v", first, err)
	}
	second, err := env.processor.Process(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Success || second.Code != OutcomeAlreadyProcessed {
		t.Fatalf("expected ALREADY_PROCESSED, got %+v", second)
	}
	if total := countReferrals(t, env.db, order.ID); total != 1 {
		t.Fatalf("expected exactly 1 referral, got %d", total)
	}
}

func TestProcessOrderPolicyGates(t *testing.T) {
	env := setupCommissionTest(t)

	active := createTestAffiliate(t, env.db, "AFF300", nil)
	suspended := createTestAffiliate(t, env.db, "AFF301", func(a *models.AffiliateAccount) {
		a.Status = constants.AffiliateStatusSuspended
	})

	disabled := AffiliateDefaultSetting()
	env.applySetting(t, disabled)
	order := createTestCommissionOrder(t, env.db, models.Order{TotalAmount: money("20"), AffiliateAccountID: &active.ID},
		testOrderLine{productID: 3, lineTotal: "20"})
	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || result.Code != OutcomeProgramDisabled {
		t.Fatalf("expected PROGRAM_DISABLED, got %+v err=%v", result, err)
	}

	env.applySetting(t, enabledTestSetting())

	noAffiliate := createTestCommissionOrder(t, env.db, models.Order{TotalAmount: money("20")},
		testOrderLine{productID: 3, lineTotal: "20"})
	result, err = env.processor.Process(context.Background(), noAffiliate.ID)
	if err != nil || result.Code != OutcomeNoAffiliate {
		t.Fatalf("expected NO_AFFILIATE, got %+v err=%v", result, err)
	}

	unknownCode := createTestCommissionOrder(t, env.db, models.Order{TotalAmount: money("20"), AffiliateCode: "MISSING"},
		testOrderLine{productID: 3, lineTotal: "20"})
	result, err = env.processor.Process(context.Background(), unknownCode.ID)
	if err != nil || result.Code != OutcomeNoAffiliate {
		t.Fatalf("expected NO_AFFILIATE for unknown code, got %+v err=%v", result, err)
	}

	inactive := createTestCommissionOrder(t, env.db, models.Order{TotalAmount: money("20"), AffiliateAccountID: &suspended.ID},
		testOrderLine{productID: 3, lineTotal: "20"})
	result, err = env.processor.Process(context.Background(), inactive.ID)
	if err != nil || result.Code != OutcomeAffiliateInactive {
		t.Fatalf("expected AFFILIATE_INACTIVE, got %+v err=%v", result, err)
	}

	result, err = env.processor.Process(context.Background(), 999999)
	if err != nil || result.Code != OutcomeOrderNotFound {
		t.Fatalf("expected ORDER_NOT_FOUND, got %+v err=%v", result, err)
	}

	for _, id := range []uint{order.ID, noAffiliate.ID, unknownCode.ID, inactive.ID} {
		if total := countReferrals(t, env.db, id); total != 0 {
			t.Fatalf("expected no referrals for order %d, got %d", id, total)
		}
	}
}

func TestProcessOrderSelfReferralBlocksPersistence(t *testing.T) {
	env := setupCommissionTest(t)
	env.applySetting(t, enabledTestSetting())

	affiliate := createTestAffiliate(t, env.db, "AFF400", func(a *models.AffiliateAccount) {
		a.Email = "owner@example.com"
		a.SignupIP = "198.51.100.4"
	})

	byEmail := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         " Owner@Example.com ",
		TotalAmount:        money("40"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 4, lineTotal: "40"})
	result, err := env.processor.Process(context.Background(), byEmail.ID)
	if err != nil || result.Code != OutcomeFraudSelfReferral {
		t.Fatalf("expected FRAUD_SELF_REFERRAL by email, got %+v err=%v", result, err)
	}
	if total := countReferrals(t, env.db, byEmail.ID); total != 0 {
		t.Fatalf("expected no referral after fraud rejection, got %d", total)
	}

	byIP := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "someone@example.com",
		ClientIP:           "198.51.100.4",
		TotalAmount:        money("40"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 4, lineTotal: "40"})
	result, err = env.processor.Process(context.Background(), byIP.ID)
	if err != nil || result.Code != OutcomeFraudSelfReferral {
		t.Fatalf("expected FRAUD_SELF_REFERRAL by ip, got %+v err=%v", result, err)
	}
	if total := countReferrals(t, env.db, byIP.ID); total != 0 {
		t.Fatalf("expected no referral after fraud rejection, got %d", total)
	}

	allowed := enabledTestSetting()
	allowed.AllowSelfReferral = true
	env.applySetting(t, allowed)
	result, err = env.processor.Process(context.Background(), byEmail.ID)
	if err != nil || !result.Success {
		t.Fatalf("expected success when self referral allowed, got %+v err=%v", result, err)
	}
}

func TestProcessOrderSelfReferralMatchesBuyerUser(t *testing.T) {
	env := setupCommissionTest(t)
	env.applySetting(t, enabledTestSetting())

	buyer := models.User{Email: "login@example.com"}
	if err := env.db.Create(&buyer).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	affiliate := createTestAffiliate(t, env.db, "AFF450", func(a *models.AffiliateAccount) {
		a.UserID = buyer.ID
		a.Email = "payouts@example.com"
	})
	order := createTestCommissionOrder(t, env.db, models.Order{
		UserID:             buyer.ID,
		TotalAmount:        money("100"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 4, lineTotal: "100"})

	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || result.Code != OutcomeFraudSelfReferral {
		t.Fatalf("expected FRAUD_SELF_REFERRAL for own user account, got %+v err=%v", result, err)
	}
	if total := countReferrals(t, env.db, order.ID); total != 0 {
		t.Fatalf("expected no referral after fraud rejection, got %d", total)
	}

	external := createTestAffiliate(t, env.db, "AFF451", nil)
	guest := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "guest@example.com",
		TotalAmount:        money("100"),
		AffiliateAccountID: &external.ID,
	}, testOrderLine{productID: 4, lineTotal: "100"})
	result, err = env.processor.Process(context.Background(), guest.ID)
	if err != nil || !result.Success {
		t.Fatalf("expected guest order of external affiliate to succeed, got %+v err=%v", result, err)
	}
}

func TestProcessOrderVelocityBlocksEvenWhenSelfReferralAllowed(t *testing.T) {
	env := setupCommissionTest(t)
	setting := enabledTestSetting()
	setting.AllowSelfReferral = true
	setting.VelocityWindowMinutes = 60
	setting.VelocityMaxClicks = 2
	env.applySetting(t, setting)

	affiliate := createTestAffiliate(t, env.db, "AFF500", nil)
	for i := 0; i < 3; i++ {
		if err := env.db.Create(&models.AffiliateClick{
			AffiliateAccountID: affiliate.ID,
			VisitorKey:         fmt.Sprintf("v-%d", i),
			ClientIP:           "192.0.2.1",
			CreatedAt:          time.Now().Add(-time.Duration(i) * time.Minute),
		}).Error; err != nil {
			t.Fatalf("create click failed: %v", err)
		}
	}
	order := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "fast@example.com",
		TotalAmount:        money("30"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 5, lineTotal: "30"})

	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || result.Code != OutcomeFraudVelocity {
		t.Fatalf("expected FRAUD_VELOCITY, got %+v err=%v", result, err)
	}
	if total := countReferrals(t, env.db, order.ID); total != 0 {
		t.Fatalf("expected no referral after velocity rejection, got %d", total)
	}
}

func TestProcessOrderZeroCommissionPolicy(t *testing.T) {
	env := setupCommissionTest(t)
	env.applySetting(t, enabledTestSetting())

	affiliate := createTestAffiliate(t, env.db, "AFF600", nil)
	if err := env.db.Create(&models.ProductCommissionRate{
		ProductID:          6,
		AffiliateAccountID: &affiliate.ID,
		Rate:               pct("0"),
		Type:               constants.CommissionTypePercentage,
	}).Error; err != nil {
		t.Fatalf("create override failed: %v", err)
	}
	order := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "zero@example.com",
		TotalAmount:        money("80"),
		AffiliateAccountID: &affiliate.ID,
	}, testOrderLine{productID: 6, lineTotal: "80"})

	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || result.Code != OutcomeZeroCommission {
		t.Fatalf("expected ZERO_COMMISSION, got %+v err=%v", result, err)
	}
	if total := countReferrals(t, env.db, order.ID); total != 0 {
		t.Fatalf("expected no referral, got %d", total)
	}

	setting := enabledTestSetting()
	setting.ZeroValueReferrals = true
	env.applySetting(t, setting)

	result, err = env.processor.Process(context.Background(), order.ID)
	if err != nil || !result.Success {
		t.Fatalf("expected success with zero value referrals, got %+v err=%v", result, err)
	}
	referral := directReferral(t, env.db, order.ID)
	if referral.Status != constants.ReferralStatusPending || !referral.CommissionAmount.IsZero() {
		t.Fatalf("expected zero PENDING referral, got status=%s amount=%s", referral.Status, referral.CommissionAmount.String())
	}
}

func TestProcessOrderDistributesMLMRewards(t *testing.T) {
	env := setupCommissionTest(t)
	setting := enabledTestSetting()
	setting.MLMEnabled = true
	setting.MLMMaxLevels = 2
	setting.MLMLevelRates = []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(2)}
	env.applySetting(t, setting)

	grand := createTestAffiliate(t, env.db, "AFF700", func(a *models.AffiliateAccount) {
		a.Status = constants.AffiliateStatusSuspended
	})
	sponsor := createTestAffiliate(t, env.db, "AFF701", func(a *models.AffiliateAccount) {
		a.SponsorID = &grand.ID
	})
	direct := createTestAffiliate(t, env.db, "AFF702", func(a *models.AffiliateAccount) {
		a.SponsorID = &sponsor.ID
	})
	order := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:    "mlm@example.com",
		TotalAmount:   money("100"),
		AffiliateCode: "aff702",
	}, testOrderLine{productID: 7, lineTotal: "100"})

	result, err := env.processor.Process(context.Background(), order.ID)
	if err != nil || !result.Success {
		t.Fatalf("expected success, got %+v err=%v", result, err)
	}
	if result.Commission.String() != "10.00" {
		t.Fatalf("expected direct commission 10.00, got %s", result.Commission.String())
	}
	if result.MLMReferrals != 1 {
		t.Fatalf("expected 1 mlm referral (chain stops at suspended sponsor), got %d", result.MLMReferrals)
	}

	directRow := directReferral(t, env.db, order.ID)
	if directRow.AffiliateAccountID != direct.ID {
		t.Fatalf("expected direct referral for %d, got %d", direct.ID, directRow.AffiliateAccountID)
	}
	var reward models.Referral
	if err := env.db.Where("order_id = ? AND is_mlm_reward = ?", order.ID, true).First(&reward).Error; err != nil {
		t.Fatalf("load mlm referral failed: %v", err)
	}
	if reward.AffiliateAccountID != sponsor.ID || reward.MlmLevel != 1 {
		t.Fatalf("unexpected mlm referral owner/level: %+v", reward)
	}
	if !reward.CommissionAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected mlm commission 5, got %s", reward.CommissionAmount.String())
	}
	if !reward.AvailableAt.Equal(directRow.AvailableAt) {
		t.Fatalf("expected same available_at, got %s vs %s", reward.AvailableAt, directRow.AvailableAt)
	}
	if reward.SourceAffiliateID == nil || *reward.SourceAffiliateID != direct.ID {
		t.Fatalf("expected source affiliate %d, got %v", direct.ID, reward.SourceAffiliateID)
	}
	if len(reward.CalculationLog) != 1 || reward.CalculationLog[0].Level != 1 || reward.CalculationLog[0].UplineAffiliateID != sponsor.ID {
		t.Fatalf("unexpected mlm calculation log: %+v", reward.CalculationLog)
	}
	if total := countReferrals(t, env.db, order.ID); total != 2 {
		t.Fatalf("expected 2 referrals, got %d", total)
	}
}

func TestProcessOrderLifetimeAttribution(t *testing.T) {
	env := setupCommissionTest(t)
	setting := enabledTestSetting()
	setting.LifetimeCommissions = true
	env.applySetting(t, setting)

	affiliate := createTestAffiliate(t, env.db, "AFF800", nil)
	buyer := models.User{Email: "loyal@example.com", Status: "active"}
	if err := env.db.Create(&buyer).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	first := createTestCommissionOrder(t, env.db, models.Order{
		UserID:             buyer.ID,
		TotalAmount:        money("60"),
		AffiliateAccountID: &affiliate.ID,
		CreatedAt:          time.Now().Add(-2 * time.Hour),
	}, testOrderLine{productID: 8, lineTotal: "60"})
	result, err := env.processor.Process(context.Background(), first.ID)
	if err != nil || !result.Success || result.AttributionSource != constants.AttributionSourceCookie {
		t.Fatalf("expected cookie attributed success, got %+v err=%v", result, err)
	}

	var reloaded models.User
	if err := env.db.First(&reloaded, buyer.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if reloaded.ReferredByAffiliateID == nil || *reloaded.ReferredByAffiliateID != affiliate.ID {
		t.Fatalf("expected lifetime link bound to %d, got %v", affiliate.ID, reloaded.ReferredByAffiliateID)
	}

	second := createTestCommissionOrder(t, env.db, models.Order{
		UserID:      buyer.ID,
		TotalAmount: money("30"),
	}, testOrderLine{productID: 8, lineTotal: "30"})
	result, err = env.processor.Process(context.Background(), second.ID)
	if err != nil || !result.Success {
		t.Fatalf("expected lifetime success, got %+v err=%v", result, err)
	}
	if result.AttributionSource != constants.AttributionSourceLifetime || result.AffiliateID != affiliate.ID {
		t.Fatalf("expected LIFETIME attribution to %d, got %+v", affiliate.ID, result)
	}
}

func TestProcessOrderCustomerTypeCountsStrictlyPriorOrders(t *testing.T) {
	env := setupCommissionTest(t)
	env.applySetting(t, enabledTestSetting())

	rule := models.DynamicCommissionRule{
		Name:        "new-customer",
		Priority:    1,
		IsActive:    true,
		Conditions:  models.JSON{"customer_type": "NEW"},
		ActionType:  constants.CommissionTypePercentage,
		ActionValue: pct("20"),
	}
	if err := env.db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	if err := env.provider.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	affiliate := createTestAffiliate(t, env.db, "AFF900", nil)
	base := time.Now().Add(-3 * time.Hour)
	first := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "newbie@example.com",
		TotalAmount:        money("100"),
		AffiliateAccountID: &affiliate.ID,
		CreatedAt:          base,
	}, testOrderLine{productID: 9, lineTotal: "100"})
	second := createTestCommissionOrder(t, env.db, models.Order{
		GuestEmail:         "newbie@example.com",
		TotalAmount:        money("100"),
		AffiliateAccountID: &affiliate.ID,
		CreatedAt:          base.Add(time.Hour),
	}, testOrderLine{productID: 9, lineTotal: "100"})

	result, err := env.processor.Process(context.Background(), first.ID)
	if err != nil || result.Commission.String() != "20.00" {
		t.Fatalf("expected NEW rule commission 20.00, got %+v err=%v", result, err)
	}
	if log := directReferral(t, env.db, first.ID).CalculationLog; log[0].Source != "RULE:new-customer" {
		t.Fatalf("expected RULE:new-customer, got %s", log[0].Source)
	}

	result, err = env.processor.Process(context.Background(), second.ID)
	if err != nil || result.Commission.String() != "10.00" {
		t.Fatalf("expected global commission 10.00 for returning buyer, got %+v err=%v", result, err)
	}
	if log := directReferral(t, env.db, second.ID).CalculationLog; log[0].Source != constants.RateSourceGlobalDefault {
		t.Fatalf("expected GLOBAL_DEFAULT, got %s", log[0].Source)
	}
}
