package provider

import (
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/repository"
	"github.com/dujiao-next/commission-engine/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	QueueClient *queue.Client

	// Repositories
	UserRepo         repository.UserRepository
	OrderRepo        repository.OrderRepository
	ProductRepo      repository.ProductRepository
	SettingRepo      repository.SettingRepository
	AffiliateRepo    repository.AffiliateRepository
	ReferralRepo     repository.ReferralRepository
	LedgerRepo       repository.LedgerRepository
	AnalyticsRepo    repository.AnalyticsRepository
	CommissionConfig repository.CommissionConfigRepository
	NotificationRepo repository.NotificationRepository

	// Services
	SettingService      *service.SettingService
	ConfigProvider      *service.ConfigProvider
	CommissionResolver  *service.CommissionResolver
	FraudGuard          *service.FraudGuard
	MLMDistributor      *service.MLMDistributor
	NotificationService *service.NotificationService
	OrderProcessor      *service.OrderProcessor
	SettlementService   *service.SettlementService
	TierEvaluator       *service.TierEvaluator
	AffiliateService    *service.AffiliateService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	return NewContainerWithDB(cfg, models.DB)
}

// NewContainerWithDB 使用指定数据库初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端，未启用时为空操作客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		DB:          db,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.UserRepo = repository.NewUserRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.LedgerRepo = repository.NewLedgerRepository(db)
	c.AnalyticsRepo = repository.NewAnalyticsRepository(db)
	c.CommissionConfig = repository.NewCommissionConfigRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
}

func (c *Container) initServices() {
	snapshotTTL := time.Duration(c.Config.Commission.SnapshotCacheSeconds) * time.Second

	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.ConfigProvider = service.NewConfigProvider(c.SettingService, c.CommissionConfig, snapshotTTL)
	c.CommissionResolver = service.NewCommissionResolver(c.CommissionConfig)
	c.FraudGuard = service.NewFraudGuard(c.AffiliateRepo, c.ReferralRepo)
	c.MLMDistributor = service.NewMLMDistributor(c.AffiliateRepo, c.ReferralRepo)
	c.NotificationService = service.NewNotificationService(c.NotificationRepo, c.QueueClient)
	c.OrderProcessor = service.NewOrderProcessor(service.OrderProcessorDeps{
		ConfigProvider: c.ConfigProvider,
		Resolver:       c.CommissionResolver,
		FraudGuard:     c.FraudGuard,
		MLM:            c.MLMDistributor,
		Notifications:  c.NotificationService,
		OrderRepo:      c.OrderRepo,
		ProductRepo:    c.ProductRepo,
		UserRepo:       c.UserRepo,
		AffiliateRepo:  c.AffiliateRepo,
		ReferralRepo:   c.ReferralRepo,
		AnalyticsRepo:  c.AnalyticsRepo,
	})
	c.SettlementService = service.NewSettlementService(
		c.ConfigProvider,
		c.AffiliateRepo,
		c.ReferralRepo,
		c.LedgerRepo,
		c.NotificationService,
		c.Config.Commission.SettlementConcurrency,
	)
	c.TierEvaluator = service.NewTierEvaluator(c.CommissionConfig, c.AffiliateRepo, c.ReferralRepo, c.NotificationService)
	c.AffiliateService = service.NewAffiliateService(c.AffiliateRepo, c.ReferralRepo, c.LedgerRepo, c.SettingService)
}
