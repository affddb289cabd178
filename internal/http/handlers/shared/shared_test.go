package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dujiao-next/commission-engine/internal/http/response"
	"github.com/dujiao-next/commission-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return body
}

func TestRespondServiceErrorMapsSentinels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{fmt.Errorf("%w: id=9", service.ErrOrderNotFound), response.CodeNotFound, "订单不存在"},
		{fmt.Errorf("%w: holding_period_days", service.ErrAffiliateConfigInvalid), response.CodeBadRequest, "设置参数非法"},
		{fmt.Errorf("enqueue: %w", asynq.ErrDuplicateTask), response.CodeConflict, "同类任务已在执行或排队"},
		{service.ErrSnapshotUnavailable, response.CodeUnavailable, "佣金配置暂不可用"},
		{errors.New("database is locked"), response.CodeInternal, "结算执行失败"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("request_id", "req-1")
		RespondServiceError(c, tc.err, "结算执行失败")

		if w.Code != http.StatusOK {
			t.Fatalf("envelope must use http 200, got %d", w.Code)
		}
		body := decodeEnvelope(t, w)
		if body.StatusCode != tc.code || body.Msg != tc.msg {
			t.Fatalf("err %v: expected %d/%s, got %d/%s", tc.err, tc.code, tc.msg, body.StatusCode, body.Msg)
		}
		if body.RequestID != "req-1" || body.Data != nil {
			t.Fatalf("expected request_id on envelope and empty data, got %+v", body)
		}
	}
}

func TestClassifyFallback(t *testing.T) {
	if response.Classify(nil, nil, nil) != nil {
		t.Fatalf("nil error should classify to nil")
	}
	appErr := response.Classify(errors.New("boom"), nil, nil)
	if appErr.Code != response.CodeInternal || appErr.Expected() {
		t.Fatalf("unexpected fallback: %+v", appErr)
	}
	if !errors.Is(appErr, appErr.Err) {
		t.Fatalf("expected AppError to unwrap original error")
	}
}

func TestPageQueryNormalizes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 20},
		{"page=3&page_size=50", 3, 50},
		{"page=-1&page_size=500", 1, 100},
		{"page=abc&page_size=", 1, 20},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/referrals?"+tc.query, nil)
		page, pageSize := PageQuery(c)
		if page != tc.page || pageSize != tc.pageSize {
			t.Fatalf("query %q: expected %d/%d, got %d/%d", tc.query, tc.page, tc.pageSize, page, pageSize)
		}
	}
}

func TestParamUintRejectsZero(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "0"}}
	if _, ok := ParamUint(c, "id"); ok {
		t.Fatalf("expected id 0 to be rejected")
	}
	if body := decodeEnvelope(t, w); body.StatusCode != response.CodeBadRequest {
		t.Fatalf("expected 400 envelope, got %d", body.StatusCode)
	}
}
