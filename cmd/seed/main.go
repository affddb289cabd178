package main

import (
	"fmt"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.PoolConfig()); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 推广计划配置
	setting := service.AffiliateDefaultSetting()
	setting.Enabled = true
	setting.HoldingPeriodDays = 14
	setting.GlobalDefaultRate = decimal.NewFromInt(10)
	setting.ExcludeTax = true
	setting.ExcludeShipping = true
	setting.LifetimeCommissions = true
	setting.MLMEnabled = true
	setting.MLMMaxLevels = 2
	setting.MLMCommissionBasis = constants.MLMBasisSales
	setting.MLMLevelRates = []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(2)}
	settingService := service.NewSettingService(repository.NewSettingRepository(models.DB))
	if _, err := settingService.UpdateAffiliateSetting(setting); err != nil {
		stdLog.Fatalf("Failed to save affiliate setting: %v", err)
	}
	stdLog.Printf("Saved affiliate setting")

	// 佣金分组
	vipRate := mustRate("15")
	group := models.CommissionGroup{Name: "VIP Partners", DefaultRate: &vipRate, DefaultType: constants.CommissionTypePercentage}
	if err := models.DB.Where("name = ?", group.Name).FirstOrCreate(&group).Error; err != nil {
		stdLog.Fatalf("Failed to create commission group: %v", err)
	}
	stdLog.Printf("Commission group ready: %s (id=%d)", group.Name, group.ID)

	// 推广等级
	bronzeRate, silverRate, goldRate := mustRate("8"), mustRate("12"), mustRate("15")
	tiers := []models.CommissionTier{
		{Name: "Bronze", DefaultRate: &bronzeRate, DefaultType: constants.CommissionTypePercentage, MinSalesAmount: mustMoney("0")},
		{Name: "Silver", DefaultRate: &silverRate, DefaultType: constants.CommissionTypePercentage, MinSalesAmount: mustMoney("500"), MinSalesCount: 5},
		{Name: "Gold", DefaultRate: &goldRate, DefaultType: constants.CommissionTypePercentage, MinSalesAmount: mustMoney("2000"), MinSalesCount: 20},
	}
	tierIDs := map[string]uint{}
	for i := range tiers {
		tier := tiers[i]
		if err := models.DB.Where("name = ?", tier.Name).FirstOrCreate(&tier).Error; err != nil {
			stdLog.Printf("Failed to create tier %s: %v", tier.Name, err)
			continue
		}
		tierIDs[tier.Name] = tier.ID
		stdLog.Printf("Tier ready: %s (id=%d)", tier.Name, tier.ID)
	}

	// 动态规则
	rules := []models.DynamicCommissionRule{
		{
			Name:        "big-order",
			Priority:    10,
			IsActive:    true,
			Conditions:  models.JSON(map[string]interface{}{"min_order_amount": "500"}),
			ActionType:  constants.CommissionTypePercentage,
			ActionValue: mustRate("12"),
		},
		{
			Name:        "new-customer",
			Priority:    20,
			IsActive:    true,
			Conditions:  models.JSON(map[string]interface{}{"customer_type": constants.CustomerTypeNew}),
			ActionType:  constants.CommissionTypeFixed,
			ActionValue: mustRate("3"),
		},
	}
	for i := range rules {
		rule := rules[i]
		if err := models.DB.Where("name = ?", rule.Name).FirstOrCreate(&rule).Error; err != nil {
			stdLog.Printf("Failed to create rule %s: %v", rule.Name, err)
			continue
		}
		stdLog.Printf("Rule ready: %s (priority=%d)", rule.Name, rule.Priority)
	}

	// 商品
	products := []models.Product{
		{Slug: "wireless-earbuds", CategoryID: 1, PriceAmount: mustMoney("129.00"), CostAmount: mustMoney("70.00"), CommissionValue: mustMoney("40.00")},
		{Slug: "smart-watch", CategoryID: 1, PriceAmount: mustMoney("299.00"), CostAmount: mustMoney("180.00"), CommissionValue: mustMoney("90.00")},
		{Slug: "travel-mug", CategoryID: 2, PriceAmount: mustMoney("25.00"), CostAmount: mustMoney("9.00"), CommissionValue: mustMoney("8.00")},
	}
	productIDs := map[string]uint{}
	for i := range products {
		product := products[i]
		if err := models.DB.Where("slug = ?", product.Slug).FirstOrCreate(&product).Error; err != nil {
			stdLog.Printf("Failed to create product %s: %v", product.Slug, err)
			continue
		}
		productIDs[product.Slug] = product.ID
	}

	// 推广者链路：TOPAFF ← MIDAFF ← NEWAFF
	top := seedAffiliate("TOPAFF", "top@partners.example.com", &group.ID, tierIDs["Gold"], nil)
	mid := seedAffiliate("MIDAFF", "mid@partners.example.com", nil, tierIDs["Silver"], &top.ID)
	leaf := seedAffiliate("NEWAFF", "new@partners.example.com", nil, tierIDs["Bronze"], &mid.ID)
	stdLog.Printf("Affiliates ready: %s, %s, %s", top.AffiliateCode, mid.AffiliateCode, leaf.AffiliateCode)

	// 商品×推广者覆盖：旅行杯对 NEWAFF 固定 1.50/件
	override := models.ProductCommissionRate{
		ProductID:          productIDs["travel-mug"],
		AffiliateAccountID: &leaf.ID,
		Rate:               mustRate("1.50"),
		Type:               constants.CommissionTypeFixed,
	}
	if err := models.DB.Where("product_id = ? AND affiliate_account_id = ?", override.ProductID, leaf.ID).FirstOrCreate(&override).Error; err != nil {
		stdLog.Printf("Failed to create product override: %v", err)
	}

	// 终身归因客户与示例订单
	referredAt := time.Now().AddDate(0, -1, 0)
	customer := models.User{Email: "customer@example.com", DisplayName: "Demo Customer", Status: "active", ReferredByAffiliateID: &leaf.ID, ReferredAt: &referredAt}
	if err := models.DB.Where("email = ?", customer.Email).FirstOrCreate(&customer).Error; err != nil {
		stdLog.Printf("Failed to create customer: %v", err)
	}

	orders := []struct {
		no    string
		slug  string
		qty   int
		price string
		tax   string
	}{
		{no: "SEED-0001", slug: "wireless-earbuds", qty: 1, price: "129.00", tax: "10.32"},
		{no: "SEED-0002", slug: "travel-mug", qty: 4, price: "25.00", tax: "8.00"},
		{no: "SEED-0003", slug: "smart-watch", qty: 2, price: "299.00", tax: "47.84"},
	}
	for _, item := range orders {
		var existing models.Order
		if err := models.DB.Where("order_no = ?", item.no).First(&existing).Error; err == nil {
			stdLog.Printf("Order already exists: %s", item.no)
			continue
		}
		unit := decimal.RequireFromString(item.price)
		lineSubtotal := unit.Mul(decimal.NewFromInt(int64(item.qty)))
		tax := decimal.RequireFromString(item.tax)
		paidAt := time.Now().Add(-time.Hour)
		order := models.Order{
			OrderNo:        item.no,
			UserID:         customer.ID,
			Status:         constants.OrderStatusPaid,
			SubtotalAmount: models.NewMoneyFromDecimal(lineSubtotal),
			TaxAmount:      models.NewMoneyFromDecimal(tax),
			TotalAmount:    models.NewMoneyFromDecimal(lineSubtotal.Add(tax)),
			ClientIP:       "203.0.113.10",
			PaidAt:         &paidAt,
			Items: []models.OrderItem{
				{
					ProductID: productIDs[item.slug],
					Quantity:  item.qty,
					UnitPrice: models.NewMoneyFromDecimal(unit),
					LineTotal: models.NewMoneyFromDecimal(lineSubtotal.Add(tax)),
					TaxAmount: models.NewMoneyFromDecimal(tax),
				},
			},
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create order %s: %v", item.no, err)
			continue
		}
		stdLog.Printf("Created order: %s (id=%d)", order.OrderNo, order.ID)
	}

	fmt.Println("Seed completed. Process orders via POST /api/v1/ops/orders/:id/process")
}

func seedAffiliate(code, email string, groupID *uint, tierID uint, sponsorID *uint) models.AffiliateAccount {
	account := models.AffiliateAccount{
		AffiliateCode: code,
		Email:         email,
		Status:        constants.AffiliateStatusActive,
		GroupID:       groupID,
		SponsorID:     sponsorID,
		Balance:       models.ZeroMoney(),
		TotalEarnings: models.ZeroMoney(),
		SignupIP:      "198.51.100.7",
	}
	if tierID != 0 {
		account.TierID = &tierID
	}
	if err := models.DB.Where("affiliate_code = ?", code).FirstOrCreate(&account).Error; err != nil {
		logger.StdLogger().Fatalf("Failed to create affiliate %s: %v", code, err)
	}
	return account
}

func mustMoney(value string) models.Money {
	return models.NewMoneyFromDecimal(decimal.RequireFromString(value))
}

func mustRate(value string) models.Rate {
	return models.NewRateFromDecimal(decimal.RequireFromString(value))
}
