package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/config"
	opshandlers "github.com/dujiao-next/commission-engine/internal/http/handlers/ops"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container, batches opshandlers.BatchEnqueuer) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	opsHandler := opshandlers.New(c, batches)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ce"
	}
	clickRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:click", redisPrefix),
		WindowSeconds: cfg.Ops.ClickRateLimit.WindowSeconds,
		MaxRequests:   cfg.Ops.ClickRateLimit.MaxRequests,
		Message:       "点击上报过于频繁",
		FailOpen:      true,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware(log, "/health"))

	apiV1 := r.Group("/api/v1")
	{
		// 公开接口：推广点击上报
		public := apiV1.Group("/public")
		public.Use(ClickCORSMiddleware(cfg.CORS))
		{
			public.OPTIONS("/clicks", func(c *gin.Context) {})
			public.POST("/clicks", RateLimitMiddleware(cache.Client(), clickRule, KeyByIPAndJSONField("affiliate_code")), opsHandler.TrackClick)
		}

		// 运维接口（需 X-Ops-Token）
		ops := apiV1.Group("/ops")
		ops.Use(OpsTokenMiddleware(cfg.Ops.Token))
		{
			ops.POST("/orders/:id/process", opsHandler.ProcessOrder)
			ops.POST("/orders/:id/reject", opsHandler.RejectOrderReferrals)

			ops.POST("/jobs/settlement", opsHandler.RunSettlement)
			ops.POST("/jobs/tiers", opsHandler.RunTierEvaluation)
			ops.POST("/jobs/risk", opsHandler.RunRiskRefresh)

			ops.GET("/settings/affiliate", opsHandler.GetAffiliateSettings)
			ops.PUT("/settings/affiliate", opsHandler.UpdateAffiliateSettings)
			ops.POST("/config/invalidate", opsHandler.InvalidateConfig)

			ops.GET("/referrals", opsHandler.ListReferrals)
			ops.GET("/affiliates/:id/ledger/verify", opsHandler.VerifyLedger)
		}
	}

	// 健康检查
	r.GET("/health", healthHandler)

	return r
}

func healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "disabled"}
	if models.DB == nil {
		checks["database"] = "uninitialized"
		status = http.StatusServiceUnavailable
	} else if sqlDB, err := models.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if cache.Enabled() {
		checks["redis"] = "ok"
		if err := cache.Ping(ctx); err != nil {
			checks["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	checks["status"] = "ok"
	if status != http.StatusOK {
		checks["status"] = "degraded"
	}
	c.JSON(status, checks)
}
