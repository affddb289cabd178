package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 通知等非资金任务
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 资金相关任务队列
	CriticalQueue = constants.QueueCritical

	defaultConcurrency  = 10
	orderProcessRetries = 5
	orderProcessTimeout = 2 * time.Minute
	batchRunTimeout     = 30 * time.Minute
)

// defaultQueueWeights 资金任务优先被拉取
var defaultQueueWeights = map[string]int{CriticalQueue: 6, DefaultQueue: 3}

// Client 队列客户端封装，未启用时所有投递均为空操作
type Client struct {
	client *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{client: asynq.NewClient(redisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueAffiliateOrderProcess 推送订单佣金处理任务；同一订单排队中时返回 asynq.ErrTaskIDConflict
func (c *Client) EnqueueAffiliateOrderProcess(payload AffiliateOrderProcessPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewAffiliateOrderProcessTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, append([]asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(orderProcessRetries),
		asynq.Timeout(orderProcessTimeout),
		asynq.TaskID(OrderProcessTaskID(payload.OrderID)),
	}, opts...))
}

// EnqueueBatchRun 推送批处理任务，同类任务在 uniqueTTL 内只保留一个
func (c *Client) EnqueueBatchRun(taskType string, payload AffiliateBatchRunPayload, uniqueTTL time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewAffiliateBatchRunTask(taskType, payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(batchRunTimeout),
	}
	if uniqueTTL > 0 {
		options = append(options, asynq.Unique(uniqueTTL))
	}
	return c.enqueue(task, options)
}

// EnqueueNotificationDispatch 推送通知派发唤醒任务
func (c *Client) EnqueueNotificationDispatch(payload NotificationDispatchPayload, opts ...asynq.Option) error {
	if !c.Enabled() || len(payload.MessageIDs) == 0 {
		return nil
	}
	task, err := NewNotificationDispatchTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task, append([]asynq.Option{asynq.Queue(DefaultQueue)}, opts...))
}

func (c *Client) enqueue(task *asynq.Task, options []asynq.Option) error {
	info, err := c.client.Enqueue(task, options...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	logger.Debugw("queue_task_enqueued", "type", task.Type(), "task_id", info.ID, "queue", info.Queue)
	return nil
}

// OrderProcessTaskID 订单处理任务 ID，用于排队期间去重
func OrderProcessTaskID(orderID uint) string {
	return fmt.Sprintf("%s:%d", TaskAffiliateOrderProcess, orderID)
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := defaultConcurrency
	queues := defaultQueueWeights
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = cfg.Queues
		}
	}
	weights := make(map[string]int, len(queues))
	for name, weight := range queues {
		weights[name] = weight
	}
	return redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      weights,
	}
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = fmt.Sprintf("%s:%d", host, port)
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
