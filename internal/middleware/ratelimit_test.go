package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// sendAs はユーザーIDをコンテキストに積んだリクエストをhandlerに流す。
func sendAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func sendFrom(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestGeneralMiddleware_BurstThenThrottle(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 2,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	// バースト分は通り、使い切ると429になる
	for i := 0; i < 2; i++ {
		if w := sendAs(handler, "user-min"); w.Code != http.StatusOK {
			t.Errorf("%d回目: status = %d, want 200", i+1, w.Code)
		}
	}
	w := sendAs(handler, "user-min")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("バースト超過後のstatus = %d, want 429", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-Afterが数値でない: %q", w.Header().Get("Retry-After"))
	}
	if retryAfter < 1 {
		t.Errorf("Retry-After = %d, 1以上であるべき", retryAfter)
	}
}

func TestGeneralMiddleware_PerUserBuckets(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	if w := sendAs(handler, "user-min"); w.Code != http.StatusOK {
		t.Errorf("user-minの1回目: status = %d, want 200", w.Code)
	}
	if w := sendAs(handler, "user-min"); w.Code != http.StatusTooManyRequests {
		t.Errorf("user-minの2回目: status = %d, want 429", w.Code)
	}
	// 別ユーザーは影響を受けない
	if w := sendAs(handler, "user-jiyoung"); w.Code != http.StatusOK {
		t.Errorf("user-jiyoungの1回目: status = %d, want 200", w.Code)
	}
}

func TestGeneralMiddleware_AnonymousKeyedByClientIP(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	if w := sendFrom(handler, "203.0.113.1:50001"); w.Code != http.StatusOK {
		t.Errorf("IP1の1回目: status = %d, want 200", w.Code)
	}
	// ポートが違っても同一IPは同一キー
	if w := sendFrom(handler, "203.0.113.1:50002"); w.Code != http.StatusTooManyRequests {
		t.Errorf("IP1の2回目: status = %d, want 429", w.Code)
	}
	if w := sendFrom(handler, "203.0.113.2:50001"); w.Code != http.StatusOK {
		t.Errorf("別IPの1回目: status = %d, want 200", w.Code)
	}
}

func TestLikeToggleMiddleware_BurstThenThrottle(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 100, GeneralBurst: 200,
		LikeToggleRate: 1, LikeToggleBurst: 3,
	})
	handler := rl.LikeToggleMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := sendAs(handler, "user-min"); w.Code != http.StatusOK {
			t.Errorf("%d回目: status = %d, want 200", i+1, w.Code)
		}
	}
	w := sendAs(handler, "user-min")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("バースト超過後のstatus = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429レスポンスにRetry-Afterヘッダーがない")
	}
}

func TestLikeToggleMiddleware_RequiresUserID(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 100, GeneralBurst: 200,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})
	handler := rl.LikeToggleMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("ユーザーIDなしでハンドラーが呼ばれてはならない")
	}))

	// いいね切り替えは認証必須
	if w := sendAs(handler, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		LikeToggleRate: 1, LikeToggleBurst: 1,
	})

	// 一般バケットを使い切ってもいいねバケットは消費されない
	sendAs(rl.GeneralMiddleware()(okHandler()), "user-min")
	if w := sendAs(rl.LikeToggleMiddleware()(okHandler()), "user-min"); w.Code != http.StatusOK {
		t.Errorf("いいね切り替えのstatus = %d, want 200", w.Code)
	}
}

func TestGeneralMiddleware_429Body(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	sendAs(handler, "user-min")
	w := sendAs(handler, "user-min")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("429ボディの解析に失敗: %v", err)
	}
	for _, field := range []string{"code", "message", "category"} {
		if body[field] == "" {
			t.Errorf("429ボディに %s がない: %v", field, body)
		}
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 2, GeneralBurst: 5,
		LikeToggleRate: 1, LikeToggleBurst: 10,
		CleanupInterval: 50 * time.Millisecond,
	})
	handler := rl.GeneralMiddleware()(okHandler())

	sendAs(handler, "user-min")
	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("リクエスト後にエントリが存在するべき")
	}

	// エントリのTTLはCleanupIntervalの2倍。十分待てば回収される
	time.Sleep(200 * time.Millisecond)
	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("クリーンアップ後のエントリ数 = %d, want 0", count)
	}
}

func TestGeneralMiddleware_BehindSessionMiddleware(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "sess-rate" {
				return nil, nil
			}
			return &model.Session{
				ID:        "sess-rate",
				UserID:    "user-min",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 2,
		LikeToggleRate: 1, LikeToggleBurst: 10,
	})

	// CORS -> Session -> RateLimit の順でセッション由来のユーザーIDが使われる
	handler := NewCORSMiddleware("http://localhost:3000")(
		NewSessionMiddleware(repo)(
			rl.GeneralMiddleware()(okHandler())))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-rate"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(); code != http.StatusOK {
			t.Errorf("%d回目: status = %d, want 200", i+1, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("3回目: status = %d, want 429", code)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	// 120 req/min と 30 req/min をトークンバケットに換算した値
	if cfg.GeneralRate != 2.0 {
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.LikeToggleRate == 0 {
		t.Error("LikeToggleRate が 0 になっている")
	}
	if cfg.LikeToggleBurst != 30 {
		t.Errorf("LikeToggleBurst = %d, want 30", cfg.LikeToggleBurst)
	}
}
