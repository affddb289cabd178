package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/public/clicks", strings.NewReader(`{"affiliate_code":"  AFF001 "}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.RemoteAddr = "1.2.3.4:5678"

	key := KeyByIPAndJSONField("affiliate_code")(c)
	if key != "aff001|1.2.3.4" {
		t.Fatalf("key want aff001|1.2.3.4 got %s", key)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("read body after key extraction failed: %v", err)
	}
	if !strings.Contains(string(body), "AFF001") {
		t.Fatalf("request body should be restored after reading field")
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestDecideRateLimit(t *testing.T) {
	rule := RateLimitRule{WindowSeconds: 60, MaxRequests: 3}
	cases := []struct {
		name      string
		count     int64
		ttl       int64
		allowed   bool
		remaining int
		retry     int
	}{
		{name: "first", count: 1, ttl: 60, allowed: true, remaining: 2},
		{name: "at limit", count: 3, ttl: 20, allowed: true, remaining: 0},
		{name: "over limit", count: 4, ttl: 17, allowed: false, retry: 17},
		{name: "expired ttl", count: 9, ttl: -1, allowed: false, retry: 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decideRateLimit(tc.count, tc.ttl, rule)
			if got.Allowed != tc.allowed || got.Remaining != tc.remaining || got.RetryAfter != tc.retry {
				t.Fatalf("unexpected decision: %+v", got)
			}
		})
	}
}

func TestRateLimitKeyPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/public/clicks", strings.NewReader(`not-json`))
	c.Request.RemoteAddr = "9.8.7.6:1000"

	key := buildRateLimitKey(c, "commission:rate:click", KeyByIPAndJSONField("affiliate_code"))
	if key != "commission:rate:click:9.8.7.6" {
		t.Fatalf("expected ip fallback key, got %s", key)
	}
	if (RateLimitRule{WindowSeconds: 60}).active() {
		t.Fatalf("rule without max requests must be inactive")
	}
}

func TestReadJSONFieldSkipsOversizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	big := `{"affiliate_code":"AFF001","pad":"` + strings.Repeat("x", maxKeyBodyBytes) + `"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/public/clicks", strings.NewReader(big))

	if got := readJSONField(c, "affiliate_code"); got != "" {
		t.Fatalf("oversized body should not be parsed, got %q", got)
	}
	restored, err := io.ReadAll(c.Request.Body)
	if err != nil || len(restored) != len(big) {
		t.Fatalf("body must be fully restored, got %d bytes err=%v", len(restored), err)
	}
}
