package main

import (
	"fmt"
	"os"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"
)

var Version = "dev"

func main() {
	if err := newRootCmd(openContainer).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openContainer 按配置连接数据库并装配服务，返回的 closer 释放连接
func openContainer(configPath string) (*provider.Container, func(), error) {
	cfg := config.LoadFile(configPath)
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.PoolConfig()); err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	container := provider.NewContainer(cfg)
	closer := func() {
		_ = container.QueueClient.Close()
		_ = cache.Close()
		if sqlDB, err := container.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logger.Sync()
	}
	return container, closer, nil
}
