package constants

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusDelivered      = "delivered"
	OrderStatusCompleted      = "completed"
	OrderStatusCanceled       = "canceled"
	OrderStatusRefunded       = "refunded"
)

// 推广账户状态常量
const (
	AffiliateStatusActive    = "ACTIVE"
	AffiliateStatusSuspended = "SUSPENDED"
	AffiliateStatusPending   = "PENDING"
)

// 佣金记录状态常量
const (
	ReferralStatusPending  = "PENDING"
	ReferralStatusApproved = "APPROVED"
	ReferralStatusRejected = "REJECTED"
	ReferralStatusPaid     = "PAID"
)

// 佣金归因来源常量
const (
	AttributionSourceCookie   = "COOKIE"
	AttributionSourceLifetime = "LIFETIME"
)

// 佣金计算方式常量
const (
	CommissionTypePercentage = "PERCENTAGE"
	CommissionTypeFixed      = "FIXED"
)

// 费率来源常量（规则来源为 RULE:<name>）
const (
	RateSourceProductUserOverride  = "PRODUCT_USER_OVERRIDE"
	RateSourceProductGroupOverride = "PRODUCT_GROUP_OVERRIDE"
	RateSourceRulePrefix           = "RULE:"
	RateSourceGroupDefault         = "GROUP_DEFAULT"
	RateSourceTierDefault          = "TIER_DEFAULT"
	RateSourceGlobalDefault        = "GLOBAL_DEFAULT"
	RateSourceMLMLevel             = "MLM_LEVEL"
)

// 客户类型常量
const (
	CustomerTypeNew       = "NEW"
	CustomerTypeReturning = "RETURNING"
)

// 多级分销计算基数常量
const (
	MLMBasisSales  = "sales"
	MLMBasisProfit = "profit"
	MLMBasisCV     = "cv"
)

// 账本流水类型常量
const (
	LedgerTypeCommission = "COMMISSION"
	LedgerTypeAdjustment = "ADJUSTMENT"
	LedgerTypePayout     = "PAYOUT"
)

// 通知队列常量
const (
	NotificationChannelEmail  = "email"
	NotificationStatusPending = "pending"

	NotificationTemplateNewReferral        = "affiliate_new_referral"
	NotificationTemplateCommissionApproved = "affiliate_commission_approved"
	NotificationTemplateTierUpgraded       = "affiliate_tier_upgraded"
)

// 队列与任务常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskAffiliateOrderProcess  = "affiliate:order_process"
	TaskAffiliateSettlementRun = "affiliate:settlement_run"
	TaskAffiliateTierEvaluate  = "affiliate:tier_evaluate"
	TaskAffiliateRiskRefresh   = "affiliate:risk_refresh"
	TaskNotificationDispatch   = "notification:dispatch"
)

// 设置键常量
const (
	SettingKeyAffiliateConfig = "affiliate_config"
)

// 缓存键常量
const (
	CacheKeyCommissionSnapshot = "commission:config:snapshot"
)

// 批处理互斥锁
const (
	LockKeySettlementRun = "lock:batch:settlement"
	LockKeyTierEvaluate  = "lock:batch:tier"
	LockKeyRiskRefresh   = "lock:batch:risk"
)
