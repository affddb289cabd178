package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
)

func TestDisabledClientSkipsEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("expected disabled client")
	}
	if err := client.EnqueueAffiliateOrderProcess(AffiliateOrderProcessPayload{OrderID: 1}); err != nil {
		t.Fatalf("expected noop enqueue, got %v", err)
	}
	if err := client.EnqueueBatchRun(TaskAffiliateSettlementRun, AffiliateBatchRunPayload{Trigger: "cron"}, time.Minute); err != nil {
		t.Fatalf("expected noop batch enqueue, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewAffiliateOrderProcessTaskPayload(t *testing.T) {
	task, err := NewAffiliateOrderProcessTask(AffiliateOrderProcessPayload{OrderID: 42})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskAffiliateOrderProcess {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	var payload AffiliateOrderProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.OrderID != 42 {
		t.Fatalf("unexpected order id: %d", payload.OrderID)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected addr: %s", opt.Addr)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("unexpected concurrency: %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] <= cfg.Queues[DefaultQueue] {
		t.Fatalf("critical queue should outweigh default: %v", cfg.Queues)
	}
	cfg.Queues[CriticalQueue] = 100
	if defaultQueueWeights[CriticalQueue] == 100 {
		t.Fatalf("server config must not share the default weight map")
	}
}

func TestBuildServerConfigOverrides(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{
		Host:        " redis.internal ",
		Concurrency: 4,
		DB:          2,
		Queues:      map[string]int{CriticalQueue: 1},
	})
	if opt.Addr != "redis.internal:6379" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt: %+v", opt)
	}
	if cfg.Concurrency != 4 || len(cfg.Queues) != 1 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
}

func TestOrderProcessTaskID(t *testing.T) {
	if got := OrderProcessTaskID(42); got != TaskAffiliateOrderProcess+":42" {
		t.Fatalf("unexpected task id: %s", got)
	}
}
