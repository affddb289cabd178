package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/commission-engine/internal/constants"
)

func TestRunExclusiveWithoutRedis(t *testing.T) {
	calls := 0
	if err := runExclusive(context.Background(), constants.LockKeySettlementRun, func() error {
		calls++
		return nil
	}); err != nil || calls != 1 {
		t.Fatalf("expected fn to run once, calls=%d err=%v", calls, err)
	}

	boom := errors.New("db down")
	if err := runExclusive(context.Background(), constants.LockKeyTierEvaluate, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
}
