package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/socialdev-club/soticle/internal/metrics"
	"github.com/socialdev-club/soticle/internal/model"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

func newTestCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

// mockSourceRepo はSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	listDueForFetchFn    func(ctx context.Context) ([]*model.Source, error)
	updateFetchStateFn   func(ctx context.Context, src *model.Source) error
	updateFaviconFn      func(ctx context.Context, sourceID string, data []byte, mime string) error
	updateFaviconCalled  bool
	updateFetchStateHits int
}

func (m *mockSourceRepo) FindByID(_ context.Context, _ string) (*model.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) FindByFeedURL(_ context.Context, _ string) (*model.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) Create(_ context.Context, _ *model.Source) error {
	return nil
}

func (m *mockSourceRepo) Update(_ context.Context, _ *model.Source) error {
	return nil
}

func (m *mockSourceRepo) UpdateFavicon(ctx context.Context, sourceID string, data []byte, mime string) error {
	m.updateFaviconCalled = true
	if m.updateFaviconFn != nil {
		return m.updateFaviconFn(ctx, sourceID, data, mime)
	}
	return nil
}

func (m *mockSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.Source, error) {
	if m.listDueForFetchFn != nil {
		return m.listDueForFetchFn(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) UpdateFetchState(ctx context.Context, src *model.Source) error {
	m.updateFetchStateHits++
	if m.updateFetchStateFn != nil {
		return m.updateFetchStateFn(ctx, src)
	}
	return nil
}

// mockUpsertService はArticleUpserterのテスト用モック。
type mockUpsertService struct {
	insertCount int
	updateCount int
	err         error
	calledWith  []model.ParsedArticle
}

func (m *mockUpsertService) UpsertArticles(_ context.Context, _ *model.Source, items []model.ParsedArticle) (int, int, error) {
	m.calledWith = items
	return m.insertCount, m.updateCount, m.err
}

// mockSSRFGuard はSSRFValidatorのテスト用モック。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockDetector はFeedURLDetectorのテスト用モック。
type mockDetector struct {
	feedURL string
	err     error
	called  bool
}

func (m *mockDetector) DetectFeedURL(_ context.Context, _ string) (string, error) {
	m.called = true
	return m.feedURL, m.err
}

// mockFaviconFetcher はFaviconFetcherServiceのテスト用モック。
type mockFaviconFetcher struct {
	data []byte
	mime string
}

func (m *mockFaviconFetcher) FetchFavicon(_ context.Context, _ string) ([]byte, string, error) {
	return m.data, m.mime, nil
}

func (m *mockFaviconFetcher) FetchFaviconForSite(_ context.Context, _ string) ([]byte, string, error) {
	return m.data, m.mime, nil
}

func newTestFetcher(repo *mockSourceRepo, upsert *mockUpsertService, guard *mockSSRFGuard, detector *mockDetector) *Fetcher {
	var buf bytes.Buffer
	return NewFetcher(
		repo,
		upsert,
		detector,
		guard,
		nil,
		newTestCollector(),
		newTestLogger(&buf),
		10*time.Second,
		5*1024*1024,
		time.Hour,
	)
}

const testRSSBody = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>쿠버네티스 블로그</title>
    <item>
      <title>컨테이너 운영기</title>
      <link>https://example.com/article1</link>
      <guid>guid-1</guid>
      <description>요약 1</description>
    </item>
  </channel>
</rss>`

func TestFetcher_Fetch_Success200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
		fmt.Fprint(w, testRSSBody)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	upsertSvc := &mockUpsertService{insertCount: 1}
	f := newTestFetcher(repo, upsertSvc, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		Name:        "등록된 이름",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	// ETag/Last-Modifiedが保存されること
	if src.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", src.ETag, `"abc123"`)
	}
	if src.LastModified != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("LastModified = %q", src.LastModified)
	}

	// UpsertArticlesが呼ばれること
	if len(upsertSvc.calledWith) != 1 {
		t.Errorf("UpsertArticles に渡された記事数 = %d, want 1", len(upsertSvc.calledWith))
	}

	// UpdateFetchStateが呼ばれること
	if repo.updateFetchStateHits == 0 {
		t.Error("UpdateFetchState が呼ばれるべき")
	}

	// ConsecutiveErrorsがリセットされること
	if src.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", src.ConsecutiveErrors)
	}

	// 運営者が登録した名前はフィードタイトルで上書きされないこと
	if src.Name != "등록된 이름" {
		t.Errorf("Name = %q, 登録名が維持されるべき", src.Name)
	}
}

func TestFetcher_Fetch_304NotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc123"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	upsertSvc := &mockUpsertService{}
	f := newTestFetcher(repo, upsertSvc, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
		ETag:        `"abc123"`,
	}

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	// 304の場合、UpsertArticlesは呼ばれない
	if upsertSvc.calledWith != nil {
		t.Error("304の場合、UpsertArticlesは呼ばれないべき")
	}

	// UpdateFetchStateは呼ばれる（next_fetch_at更新のため）
	if repo.updateFetchStateHits == 0 {
		t.Error("304でもUpdateFetchStateが呼ばれるべき")
	}
}

func TestFetcher_Fetch_ConditionalGETHeaders(t *testing.T) {
	var receivedIfNoneMatch, receivedIfModifiedSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedIfNoneMatch = r.Header.Get("If-None-Match")
		receivedIfModifiedSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:           "source-1",
		FeedURL:      server.URL,
		ETag:         `"etag-value"`,
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
	}

	_ = f.Fetch(context.Background(), src)

	if receivedIfNoneMatch != `"etag-value"` {
		t.Errorf("If-None-Match = %q, want %q", receivedIfNoneMatch, `"etag-value"`)
	}
	if receivedIfModifiedSince != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("If-Modified-Since = %q", receivedIfModifiedSince)
	}
}

func TestFetcher_Fetch_SSRFValidationStopsSource(t *testing.T) {
	guard := &mockSSRFGuard{validateErr: fmt.Errorf("blocked IP address")}
	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, guard, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		FeedURL:     "http://192.168.1.1/feed.xml",
		FetchStatus: model.FetchStatusActive,
	}

	err := f.Fetch(context.Background(), src)
	if err == nil {
		t.Fatal("SSRF検証失敗時はエラーを返すべき")
	}

	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("SSRF検証失敗時はfetch_statusがstoppedになるべき: %q", src.FetchStatus)
	}
}

func TestFetcher_Fetch_404StopsSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	// フェッチ自体はエラーではなく、ソースの停止として処理
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("404はフェッチエラーではなく停止処理: %v", err)
	}

	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("404時にfetch_status = %q, want %q", src.FetchStatus, model.FetchStatusStopped)
	}
}

func TestFetcher_Fetch_429Backoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("429はフェッチエラーではなくバックオフ処理: %v", err)
	}

	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if src.FetchStatus != model.FetchStatusActive {
		t.Errorf("429時はアクティブのまま: fetch_status = %q", src.FetchStatus)
	}
}

func TestFetcher_Fetch_ParseFailureIncrements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `not valid XML at all!!!`)
	}))
	defer server.Close()

	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:          "source-1",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("パース失敗はフェッチエラーではなくエラーカウント更新: %v", err)
	}

	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
}

func TestFetcher_Fetch_ParseFailure10ConsecutiveStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `not valid XML!!!`)
	}))
	defer server.Close()

	f := newTestFetcher(&mockSourceRepo{}, &mockUpsertService{}, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{
		ID:                "source-1",
		FeedURL:           server.URL,
		FetchStatus:       model.FetchStatusActive,
		ConsecutiveErrors: 9, // 9回目の失敗後
	}

	_ = f.Fetch(context.Background(), src)

	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("10回連続パース失敗でfetch_status = %q, want %q", src.FetchStatus, model.FetchStatusStopped)
	}
}

func TestFetcher_Fetch_AutoDetectsFeedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSSBody)
	}))
	defer server.Close()

	detector := &mockDetector{feedURL: server.URL}
	upsertSvc := &mockUpsertService{insertCount: 1}
	f := newTestFetcher(&mockSourceRepo{}, upsertSvc, &mockSSRFGuard{}, detector)

	// feed_url未設定のソース
	src := &model.Source{
		ID:          "source-1",
		SiteURL:     "https://example.com",
		FetchStatus: model.FetchStatusActive,
	}

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if !detector.called {
		t.Error("feed_url未設定時は自動検出が実行されるべき")
	}
	if src.FeedURL != server.URL {
		t.Errorf("FeedURL = %q, 検出結果が保存されるべき", src.FeedURL)
	}
	if len(upsertSvc.calledWith) != 1 {
		t.Errorf("検出後にフェッチが継続されるべき: 記事数 = %d", len(upsertSvc.calledWith))
	}
}

func TestFetcher_Fetch_DetectFailureAppliesBackoff(t *testing.T) {
	detector := &mockDetector{err: model.NewFeedNotDetectedError("https://example.com")}
	repo := &mockSourceRepo{}
	f := newTestFetcher(repo, &mockUpsertService{}, &mockSSRFGuard{}, detector)

	src := &model.Source{
		ID:          "source-1",
		SiteURL:     "https://example.com",
		FetchStatus: model.FetchStatusActive,
	}

	err := f.Fetch(context.Background(), src)
	if err == nil {
		t.Fatal("検出失敗時はエラーを返すべき")
	}

	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if repo.updateFetchStateHits == 0 {
		t.Error("検出失敗時もUpdateFetchStateが呼ばれるべき")
	}
}

func TestFetcher_Fetch_SyncsFaviconOnFirstSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSSBody)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	var buf bytes.Buffer
	f := NewFetcher(
		repo,
		&mockUpsertService{},
		&mockDetector{},
		&mockSSRFGuard{},
		&mockFaviconFetcher{data: []byte{0x89, 0x50}, mime: "image/png"},
		newTestCollector(),
		newTestLogger(&buf),
		10*time.Second,
		5*1024*1024,
		time.Hour,
	)

	src := &model.Source{
		ID:          "source-1",
		SiteURL:     "https://example.com",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	_ = f.Fetch(context.Background(), src)

	if !repo.updateFaviconCalled {
		t.Error("favicon未取得のソースはフェッチ成功時にUpdateFaviconが呼ばれるべき")
	}
	if src.FaviconMime != "image/png" {
		t.Errorf("FaviconMime = %q, want image/png", src.FaviconMime)
	}
}

func TestFetcher_Fetch_NextFetchAtUsesRefreshInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0">
  <channel><title>Test</title></channel>
</rss>`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	f := NewFetcher(
		&mockSourceRepo{},
		&mockUpsertService{},
		&mockDetector{},
		&mockSSRFGuard{},
		nil,
		newTestCollector(),
		newTestLogger(&buf),
		10*time.Second,
		5*1024*1024,
		30*time.Minute,
	)

	now := time.Now()
	src := &model.Source{
		ID:          "source-1",
		FeedURL:     server.URL,
		FetchStatus: model.FetchStatusActive,
	}

	_ = f.Fetch(context.Background(), src)

	expected := now.Add(30 * time.Minute)
	diff := src.NextFetchAt.Sub(expected)
	if diff > 5*time.Second || diff < -5*time.Second {
		t.Errorf("NextFetchAt が期待値から大幅にずれている: %v (期待: ~%v)", src.NextFetchAt, expected)
	}
}

func TestFetcher_Fetch_LogsStructuredInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSSBody)
	}))
	defer server.Close()

	var buf bytes.Buffer
	f := NewFetcher(
		&mockSourceRepo{},
		&mockUpsertService{insertCount: 1},
		&mockDetector{},
		&mockSSRFGuard{},
		nil,
		newTestCollector(),
		newTestLogger(&buf),
		10*time.Second,
		5*1024*1024,
		time.Hour,
	)

	src := &model.Source{
		ID:      "source-1",
		FeedURL: server.URL,
	}

	_ = f.Fetch(context.Background(), src)

	// 構造化ログにsource_idが含まれること
	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	foundSourceID := false
	for _, line := range lines {
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if sid, ok := entry["source_id"]; ok && sid == "source-1" {
			foundSourceID = true
		}
	}
	if !foundSourceID {
		t.Errorf("ログに source_id が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestConvertGofeedItems_MapsThumbnailAndDates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>기사 1</title>
      <link>https://example.com/1</link>
      <guid>guid-1</guid>
      <pubDate>Wed, 01 Jan 2025 09:00:00 GMT</pubDate>
      <description>&lt;p&gt;본문&lt;/p&gt;&lt;img src="https://example.com/thumb.png"&gt;</description>
    </item>
    <item>
      <title>기사 2</title>
      <guid>https://example.com/2</guid>
      <description>날짜 없음</description>
    </item>
  </channel>
</rss>`)
	}))
	defer server.Close()

	upsertSvc := &mockUpsertService{insertCount: 2}
	f := newTestFetcher(&mockSourceRepo{}, upsertSvc, &mockSSRFGuard{}, &mockDetector{})

	src := &model.Source{ID: "source-1", FeedURL: server.URL}
	_ = f.Fetch(context.Background(), src)

	if len(upsertSvc.calledWith) != 2 {
		t.Fatalf("UpsertArticlesに渡された記事数 = %d, want 2", len(upsertSvc.calledWith))
	}

	first := upsertSvc.calledWith[0]
	if first.PublishedAt == nil {
		t.Error("記事1のPublishedAtが設定されるべき")
	}
	if first.ThumbnailURL != "https://example.com/thumb.png" {
		t.Errorf("記事1のThumbnailURL = %q, 本文中の画像が抽出されるべき", first.ThumbnailURL)
	}

	second := upsertSvc.calledWith[1]
	if second.PublishedAt != nil {
		t.Error("日付のない記事のPublishedAtはnilのまま")
	}
	// リンクのない記事はURL形式のGUIDをリンクとして使用
	if second.SourceURL != "https://example.com/2" {
		t.Errorf("記事2のSourceURL = %q, GUIDが代用されるべき", second.SourceURL)
	}
}
