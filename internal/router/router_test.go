package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/commission-engine/internal/config"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRouterTest(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger.L = zap.NewNop()

	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	previous := models.DB
	models.DB = db
	t.Cleanup(func() { models.DB = previous })

	cfg := &config.Config{}
	cfg.Ops.Token = "ops-secret"
	cfg.Commission.SnapshotCacheSeconds = 60
	c := provider.NewContainerWithDB(cfg, db)
	return SetupRouter(cfg, c, nil)
}

func TestHealthReportsDatabase(t *testing.T) {
	r := setupRouterTest(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status want 200 got %d body=%s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health failed: %v", err)
	}
	if body["database"] != "ok" || body["redis"] != "disabled" || body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestOpsRoutesRequireToken(t *testing.T) {
	r := setupRouterTest(t)

	call := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ops/settings/affiliate", nil)
		if token != "" {
			req.Header.Set(opsTokenHeader, token)
		}
		r.ServeHTTP(w, req)
		var resp struct {
			StatusCode int `json:"status_code"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response failed: %v", err)
		}
		return resp.StatusCode
	}

	if code := call(""); code != 401 {
		t.Fatalf("missing token want 401 got %d", code)
	}
	if code := call("wrong"); code != 401 {
		t.Fatalf("wrong token want 401 got %d", code)
	}
	if code := call("ops-secret"); code != 0 {
		t.Fatalf("valid token want 0 got %d", code)
	}
}
