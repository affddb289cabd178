package app

import (
	"errors"

	"github.com/dujiao-next/commission-engine/internal/config"
	opshandlers "github.com/dujiao-next/commission-engine/internal/http/handlers/ops"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/router"
	"github.com/dujiao-next/commission-engine/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := ValidateMode(mode); err != nil {
		return nil, err
	}

	container := provider.NewContainer(cfg)
	consumer := worker.NewConsumer(container)

	// 队列未启用时批处理任务在进程内执行
	var batches opshandlers.BatchEnqueuer = container.QueueClient
	if !container.QueueClient.Enabled() {
		inline, err := worker.NewInlineDispatcher(consumer)
		if err != nil {
			return nil, err
		}
		batches = inline
	}

	var services []Service

	// 初始化 HTTP 服务
	if runsAPI(mode) {
		engine := router.SetupRouter(cfg, container, batches)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	// 初始化 Worker 与定时任务
	if runsWorker(mode) {
		if cfg.Queue.Enabled {
			workerService, err := worker.NewService(&cfg.Queue, consumer)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			logger.Warnw("app_worker_skipped_queue_disabled", "mode", mode)
		}
		if cfg.Scheduler.Enabled {
			scheduler, err := worker.NewScheduler(cfg.Scheduler, batches)
			if err != nil {
				return nil, err
			}
			services = append(services, scheduler)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"addr", opts.Config.Server.Addr(),
		"mode", opts.Mode,
		"services", runner.Names(),
		"queue_enabled", opts.Config.Queue.Enabled,
	)
	return RunWithOptions(runner, opts)
}
