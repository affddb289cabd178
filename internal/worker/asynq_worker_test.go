package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupWorkerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:worker_consumer_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	cfg := &config.Config{}
	cfg.Commission.SnapshotCacheSeconds = 60
	cfg.Commission.SettlementConcurrency = 2
	container := provider.NewContainerWithDB(cfg, db)

	setting := service.AffiliateDefaultSetting()
	setting.Enabled = true
	setting.HoldingPeriodDays = 0
	setting.GlobalDefaultRate = decimal.NewFromInt(10)
	if _, err := container.SettingService.UpdateAffiliateSetting(setting); err != nil {
		t.Fatalf("update affiliate setting failed: %v", err)
	}
	if err := container.ConfigProvider.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate snapshot failed: %v", err)
	}
	return NewConsumer(container), db
}

func createWorkerOrder(t *testing.T, db *gorm.DB, code string) (*models.AffiliateAccount, *models.Order) {
	t.Helper()
	account := &models.AffiliateAccount{
		AffiliateCode: code,
		Email:         code + "@affiliates.example.com",
		Status:        constants.AffiliateStatusActive,
		Balance:       models.ZeroMoney(),
		TotalEarnings: models.ZeroMoney(),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	paidAt := time.Now().Add(-time.Hour)
	order := &models.Order{
		OrderNo:            fmt.Sprintf("WRK-%d", time.Now().UnixNano()),
		GuestEmail:         "buyer@example.com",
		Status:             constants.OrderStatusPaid,
		SubtotalAmount:     models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
		TotalAmount:        models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
		AffiliateAccountID: &account.ID,
		AffiliateCode:      code,
		PaidAt:             &paidAt,
		Items: []models.OrderItem{
			{
				ProductID: 11,
				Quantity:  1,
				UnitPrice: models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
				LineTotal: models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
			},
		},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return account, order
}

func TestOrderProcessTaskCreatesReferral(t *testing.T) {
	consumer, db := setupWorkerTest(t)
	account, order := createWorkerOrder(t, db, "WRK001")

	task, err := queue.NewAffiliateOrderProcessTask(queue.AffiliateOrderProcessPayload{OrderID: order.ID})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleAffiliateOrderProcess(context.Background(), task); err != nil {
		t.Fatalf("handle order task failed: %v", err)
	}
	// 重复投递不产生新佣金
	if err := consumer.handleAffiliateOrderProcess(context.Background(), task); err != nil {
		t.Fatalf("handle duplicate order task failed: %v", err)
	}

	var referrals []models.Referral
	if err := db.Where("order_id = ?", order.ID).Find(&referrals).Error; err != nil {
		t.Fatalf("load referrals failed: %v", err)
	}
	if len(referrals) != 1 {
		t.Fatalf("expected one referral, got %d", len(referrals))
	}
	if referrals[0].AffiliateAccountID != account.ID {
		t.Fatalf("unexpected referral owner: %d", referrals[0].AffiliateAccountID)
	}
	if referrals[0].CommissionAmount.String() != "8.00" {
		t.Fatalf("expected commission 8.00, got %s", referrals[0].CommissionAmount.String())
	}
}

func TestOrderProcessTaskSkipsPolicyOutcomes(t *testing.T) {
	consumer, _ := setupWorkerTest(t)

	zero, err := queue.NewAffiliateOrderProcessTask(queue.AffiliateOrderProcessPayload{OrderID: 0})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleAffiliateOrderProcess(context.Background(), zero); err != nil {
		t.Fatalf("zero order id should be skipped, got %v", err)
	}

	missing, err := queue.NewAffiliateOrderProcessTask(queue.AffiliateOrderProcessPayload{OrderID: 424242})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleAffiliateOrderProcess(context.Background(), missing); err != nil {
		t.Fatalf("missing order should not be retried, got %v", err)
	}

	broken := asynq.NewTask(queue.TaskAffiliateOrderProcess, []byte("{not json"))
	if err := consumer.handleAffiliateOrderProcess(context.Background(), broken); err == nil {
		t.Fatalf("expected unmarshal error for broken payload")
	}
}

func TestBatchTasksRunEngineJobs(t *testing.T) {
	consumer, db := setupWorkerTest(t)
	account, order := createWorkerOrder(t, db, "WRK002")

	task, err := queue.NewAffiliateOrderProcessTask(queue.AffiliateOrderProcessPayload{OrderID: order.ID})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleAffiliateOrderProcess(context.Background(), task); err != nil {
		t.Fatalf("handle order task failed: %v", err)
	}
	// 冷却期为 0 时可用时间即创建时间，回拨确保已到期
	if err := db.Model(&models.Referral{}).
		Where("order_id = ?", order.ID).
		Update("available_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("rewind available_at failed: %v", err)
	}

	for _, taskType := range []string{
		queue.TaskAffiliateSettlementRun,
		queue.TaskAffiliateTierEvaluate,
		queue.TaskAffiliateRiskRefresh,
	} {
		batch, err := queue.NewAffiliateBatchRunTask(taskType, queue.AffiliateBatchRunPayload{Trigger: "manual"})
		if err != nil {
			t.Fatalf("build %s task failed: %v", taskType, err)
		}
		var handleErr error
		switch taskType {
		case queue.TaskAffiliateSettlementRun:
			handleErr = consumer.handleAffiliateSettlementRun(context.Background(), batch)
		case queue.TaskAffiliateTierEvaluate:
			handleErr = consumer.handleAffiliateTierEvaluate(context.Background(), batch)
		case queue.TaskAffiliateRiskRefresh:
			handleErr = consumer.handleAffiliateRiskRefresh(context.Background(), batch)
		}
		if handleErr != nil {
			t.Fatalf("handle %s failed: %v", taskType, handleErr)
		}
	}

	var stored models.AffiliateAccount
	if err := db.First(&stored, account.ID).Error; err != nil {
		t.Fatalf("load affiliate failed: %v", err)
	}
	if stored.Balance.String() != "8.00" {
		t.Fatalf("expected settled balance 8.00, got %s", stored.Balance.String())
	}
	var status string
	if err := db.Model(&models.Referral{}).Where("order_id = ?", order.ID).Pluck("status", &status).Error; err != nil {
		t.Fatalf("load referral status failed: %v", err)
	}
	if status != constants.ReferralStatusApproved {
		t.Fatalf("expected approved referral, got %s", status)
	}
}

func TestBatchTrigger(t *testing.T) {
	cases := []struct {
		payload []byte
		want    string
	}{
		{payload: nil, want: "unknown"},
		{payload: []byte("garbage"), want: "unknown"},
		{payload: []byte(`{"trigger":""}`), want: "unknown"},
		{payload: []byte(`{"trigger":"cron"}`), want: "cron"},
	}
	for _, tc := range cases {
		got := batchTrigger(asynq.NewTask(queue.TaskAffiliateSettlementRun, tc.payload))
		if got != tc.want {
			t.Fatalf("payload %q: want %q, got %q", tc.payload, tc.want, got)
		}
	}
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []string
	ttl   time.Duration
	err   error
}

func (r *recordingEnqueuer) EnqueueBatchRun(taskType string, payload queue.AffiliateBatchRunPayload, uniqueTTL time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, taskType+"|"+payload.Trigger)
	r.ttl = uniqueTTL
	return r.err
}

func TestNewSchedulerRegistersConfiguredJobs(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	s, err := NewScheduler(config.SchedulerConfig{
		SettlementSpec: "0 0 3 * * *",
		TierSpec:       "0 30 3 * * *",
		RiskSpec:       "  ",
		UniqueTTLMins:  0,
	}, enqueuer)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("expected 2 cron entries, got %d", got)
	}
	if s.uniqueTTL != defaultUniqueTTL {
		t.Fatalf("expected default unique ttl, got %s", s.uniqueTTL)
	}

	if _, err := NewScheduler(config.SchedulerConfig{SettlementSpec: "every day"}, enqueuer); err == nil {
		t.Fatalf("expected invalid cron spec error")
	}
	// 缺少秒字段的五段表达式同样非法
	if _, err := NewScheduler(config.SchedulerConfig{TierSpec: "0 3 * * *"}, enqueuer); err == nil {
		t.Fatalf("expected five-field spec to be rejected")
	}
	if _, err := NewScheduler(config.SchedulerConfig{}, nil); err == nil {
		t.Fatalf("expected nil enqueuer error")
	}
}

func TestSchedulerEnqueueToleratesDuplicates(t *testing.T) {
	enqueuer := &recordingEnqueuer{err: fmt.Errorf("enqueue: %w", asynq.ErrDuplicateTask)}
	s, err := NewScheduler(config.SchedulerConfig{UniqueTTLMins: 15}, enqueuer)
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	s.enqueue(queue.TaskAffiliateSettlementRun)
	enqueuer.err = errors.New("redis down")
	s.enqueue(queue.TaskAffiliateRiskRefresh)

	if len(enqueuer.calls) != 2 {
		t.Fatalf("expected 2 enqueue attempts, got %d", len(enqueuer.calls))
	}
	if enqueuer.calls[0] != queue.TaskAffiliateSettlementRun+"|cron" {
		t.Fatalf("unexpected first call: %s", enqueuer.calls[0])
	}
	if enqueuer.ttl != 15*time.Minute {
		t.Fatalf("expected 15m unique ttl, got %s", enqueuer.ttl)
	}
}

func TestSchedulerStartStopsWithContext(t *testing.T) {
	s, err := NewScheduler(config.SchedulerConfig{SettlementSpec: "0 0 3 * * *"}, &recordingEnqueuer{})
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop after context cancel")
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if s.Name() != "scheduler" {
		t.Fatalf("unexpected name %q", s.Name())
	}
}

func TestInlineDispatcherRunsRegisteredHandlers(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	dispatcher, err := NewInlineDispatcher(consumer)
	if err != nil {
		t.Fatalf("new inline dispatcher failed: %v", err)
	}
	if err := dispatcher.EnqueueBatchRun(queue.TaskAffiliateRiskRefresh, queue.AffiliateBatchRunPayload{Trigger: "cron"}, time.Minute); err != nil {
		t.Fatalf("inline risk refresh failed: %v", err)
	}

	// 同类任务运行中时视为重复投递
	if !dispatcher.acquire(queue.TaskAffiliateSettlementRun) {
		t.Fatalf("expected first acquire to succeed")
	}
	err = dispatcher.EnqueueBatchRun(queue.TaskAffiliateSettlementRun, queue.AffiliateBatchRunPayload{Trigger: "cron"}, time.Minute)
	if !errors.Is(err, asynq.ErrDuplicateTask) {
		t.Fatalf("expected duplicate task error, got %v", err)
	}
	dispatcher.release(queue.TaskAffiliateSettlementRun)
	if err := dispatcher.EnqueueBatchRun(queue.TaskAffiliateSettlementRun, queue.AffiliateBatchRunPayload{Trigger: "cron"}, time.Minute); err != nil {
		t.Fatalf("inline settlement failed: %v", err)
	}

	if err := dispatcher.EnqueueBatchRun("affiliate:unknown", queue.AffiliateBatchRunPayload{}, 0); err == nil {
		t.Fatalf("expected error for unregistered task type")
	}
}

func TestInlineDispatcherExclusive(t *testing.T) {
	consumer, _ := setupWorkerTest(t)
	dispatcher, err := NewInlineDispatcher(consumer)
	if err != nil {
		t.Fatalf("new inline dispatcher failed: %v", err)
	}

	errBoom := errors.New("boom")
	if err := dispatcher.Exclusive(queue.TaskAffiliateTierEvaluate, func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected fn error returned, got %v", err)
	}

	ran := false
	err = dispatcher.Exclusive(queue.TaskAffiliateTierEvaluate, func() error {
		nested := dispatcher.Exclusive(queue.TaskAffiliateTierEvaluate, func() error {
			ran = true
			return nil
		})
		if !errors.Is(nested, asynq.ErrDuplicateTask) {
			t.Fatalf("expected duplicate task error while running, got %v", nested)
		}
		return dispatcher.Exclusive(queue.TaskAffiliateRiskRefresh, func() error { return nil })
	})
	if err != nil || ran {
		t.Fatalf("expected other task types to run and duplicates to be refused, err=%v ran=%v", err, ran)
	}
}

func TestNewServiceRequiresEnabledQueue(t *testing.T) {
	if _, err := NewService(nil, &Consumer{}); err == nil {
		t.Fatalf("expected error for nil queue config")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: false}, &Consumer{}); err == nil {
		t.Fatalf("expected error for disabled queue")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("expected error for nil consumer")
	}
	svc, err := NewService(&config.QueueConfig{Enabled: true, Concurrency: 2}, &Consumer{})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	if svc.Name() != "asynq_worker" {
		t.Fatalf("unexpected service name: %s", svc.Name())
	}
	var nilService *Service
	if err := nilService.Stop(context.Background()); err != nil {
		t.Fatalf("stop on nil service should be a no-op: %v", err)
	}
}

func TestAsynqLoggerAcceptsNil(t *testing.T) {
	l := newAsynqLogger(nil)
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")
}

func TestBatchErrorSwallowsInProgress(t *testing.T) {
	inProgress := fmt.Errorf("%w: lock:batch:settlement", service.ErrBatchInProgress)
	if err := batchError("worker_affiliate_settlement_failed", "cron", inProgress); err != nil {
		t.Fatalf("in-progress batch should not be retried, got %v", err)
	}
	boom := errors.New("db down")
	if err := batchError("worker_affiliate_settlement_failed", "cron", boom); !errors.Is(err, boom) {
		t.Fatalf("expected infrastructure error to propagate, got %v", err)
	}
}
