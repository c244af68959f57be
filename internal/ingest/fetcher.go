package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/socialdev-club/soticle/internal/metrics"
	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/repository"
	"github.com/socialdev-club/soticle/internal/source"
)

// userAgent はフェッチ時に送信するUser-Agentヘッダー。
const userAgent = "Soticle/1.0 Article Aggregator"

// ArticleUpserter は記事のUPSERT処理のインターフェース。
type ArticleUpserter interface {
	UpsertArticles(ctx context.Context, src *model.Source, items []model.ParsedArticle) (int, int, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FeedURLDetector はフィードURL自動検出のインターフェース。
type FeedURLDetector interface {
	DetectFeedURL(ctx context.Context, inputURL string) (string, error)
}

// Fetcher は個別ソースのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// feed_url未設定ソースの自動検出、gofeedによるパース、
// ArticleUpsertServiceによる記事保存を実行する。
type Fetcher struct {
	sourceRepo      repository.SourceRepository
	upsertSvc       ArticleUpserter
	detector        FeedURLDetector
	ssrfGuard       SSRFValidator
	favicons        source.FaviconFetcherService
	collector       metrics.MetricsCollector
	logger          *slog.Logger
	timeout         time.Duration
	maxBodySize     int64
	refreshInterval time.Duration
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// refreshIntervalはフェッチ成功後に次回フェッチまで空ける間隔。
func NewFetcher(
	sourceRepo repository.SourceRepository,
	upsertSvc ArticleUpserter,
	detector FeedURLDetector,
	ssrfGuard SSRFValidator,
	favicons source.FaviconFetcherService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	refreshInterval time.Duration,
) *Fetcher {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	return &Fetcher{
		sourceRepo:      sourceRepo,
		upsertSvc:       upsertSvc,
		detector:        detector,
		ssrfGuard:       ssrfGuard,
		favicons:        favicons,
		collector:       collector,
		logger:          logger,
		timeout:         timeout,
		maxBodySize:     maxBodySize,
		refreshInterval: refreshInterval,
	}
}

// Fetch はソースをフェッチし、結果に応じてソース状態を更新する。
// SourceFetcherServiceインターフェースを実装する。
func (f *Fetcher) Fetch(ctx context.Context, src *model.Source) error {
	start := time.Now()

	// feed_url未設定の場合はサイトURLから自動検出する
	if src.FeedURL == "" {
		if err := f.detectFeedURL(ctx, src); err != nil {
			return err
		}
	}

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(src.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(src.ID, "ssrf_blocked")
		ApplyStopSource(src, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		f.updateFetchState(ctx, src)
		return fmt.Errorf("SSRF検証に失敗しました: %w", err)
	}

	// HTTPリクエスト構築
	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: ETag
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	// 条件付きGET: Last-Modified
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	// HTTPリクエスト実行
	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(src.ID, "http_error")
		ApplyBackoff(src, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		f.updateFetchState(ctx, src)
		return fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	f.collector.RecordHTTPStatus(resp.StatusCode)
	f.collector.RecordFetchLatency(duration)

	// HTTPステータスに基づく処理分岐
	result := ClassifyHTTPStatus(resp.StatusCode)

	switch result {
	case FetchResultNotModified:
		// 304: コンテンツ未変更 - next_fetch_atのみ更新
		f.logger.Info("ソースは未変更です（304）",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		f.collector.RecordFetchSuccess(src.ID)
		ApplySuccess(src, f.refreshInterval)
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultStop:
		// 404/410/401/403: フェッチ停止
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("ソースのフェッチを停止します",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.String("reason", reason),
		)
		f.collector.RecordFetchFailure(src.ID, "stopped")
		ApplyStopSource(src, reason)
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultBackoff:
		// 429/5xx: バックオフ
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		f.logger.Warn("ソースのフェッチにバックオフを適用します",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		f.collector.RecordFetchFailure(src.ID, "backoff")
		ApplyBackoff(src, reason)
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultOK:
		// 200: 正常フェッチ - 以下で処理を続行
	default:
		// その他のステータスコード
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.collector.RecordFetchFailure(src.ID, "unexpected_status")
		ApplyBackoff(src, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(src.ID, "read_error")
		ApplyBackoff(src, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	// ETag/Last-Modifiedを保存
	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordParseFailure(src.ID)
		ApplyParseFailure(src, err.Error())
		f.updateFetchState(ctx, src)
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	// 運営者が登録した名前を優先し、未設定の場合のみフィードから補完する
	if src.Name == "" && parsedFeed.Title != "" {
		src.Name = parsedFeed.Title
	}
	if src.SiteURL == "" && parsedFeed.Link != "" {
		src.SiteURL = parsedFeed.Link
	}

	// gofeedの記事をParsedArticleに変換
	parsedArticles := convertGofeedItems(parsedFeed.Items)

	// ArticleUpsertServiceで記事を保存
	inserted, updated, err := f.upsertSvc.UpsertArticles(ctx, src, parsedArticles)
	if err != nil {
		f.logger.Error("記事のUPSERTに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(src.ID, "upsert_error")
		ApplyParseFailure(src, fmt.Sprintf("記事UPSERT失敗: %s", err.Error()))
		f.updateFetchState(ctx, src)
		return nil
	}

	f.collector.RecordFetchSuccess(src.ID)
	f.collector.RecordArticlesUpserted(inserted + updated)
	ApplySuccess(src, f.refreshInterval)

	// favicon未取得のソースは初回成功時に補完する
	f.syncFavicon(ctx, src)

	// ソース状態を更新
	if updateErr := f.sourceRepo.UpdateFetchState(ctx, src); updateErr != nil {
		f.logger.Error("ソース状態の更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	f.logger.Info("ソースのフェッチが完了しました",
		slog.String("source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("articles_inserted", inserted),
		slog.Int("articles_updated", updated),
		slog.Int("articles_total", len(parsedArticles)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// detectFeedURL はサイトURLからフィードURLを自動検出し、ソースに保存する。
// 検出失敗時はバックオフを適用する。
func (f *Fetcher) detectFeedURL(ctx context.Context, src *model.Source) error {
	feedURL, err := f.detector.DetectFeedURL(ctx, src.SiteURL)
	if err != nil {
		f.logger.Warn("フィードURLの自動検出に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("site_url", src.SiteURL),
			slog.String("error", err.Error()),
		)
		f.collector.RecordFetchFailure(src.ID, "detect_failed")
		ApplyBackoff(src, fmt.Sprintf("フィードURL検出失敗: %s", err.Error()))
		f.updateFetchState(ctx, src)
		return fmt.Errorf("フィードURLの自動検出に失敗しました: %w", err)
	}

	f.logger.Info("フィードURLを自動検出しました",
		slog.String("source_id", src.ID),
		slog.String("site_url", src.SiteURL),
		slog.String("feed_url", feedURL),
	)
	src.FeedURL = feedURL
	return nil
}

// syncFavicon はfavicon未取得のソースに対してfaviconを取得・保存する。
// 取得失敗はフェッチ結果に影響させない。
func (f *Fetcher) syncFavicon(ctx context.Context, src *model.Source) {
	if f.favicons == nil || len(src.FaviconData) > 0 {
		return
	}

	data, mimeType, err := f.favicons.FetchFaviconForSite(ctx, src.SiteURL)
	if err != nil || data == nil {
		return
	}

	if err := f.sourceRepo.UpdateFavicon(ctx, src.ID, data, mimeType); err != nil {
		f.logger.Warn("faviconの保存に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	src.FaviconData = data
	src.FaviconMime = mimeType
}

// updateFetchState はソース状態を更新し、失敗はログに記録するだけで握りつぶす。
// 呼び出し元のエラーハンドリングを上書きしないための補助。
func (f *Fetcher) updateFetchState(ctx context.Context, src *model.Source) {
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("ソース状態の更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
	}
}

// convertGofeedItems はgofeedの記事をmodel.ParsedArticleに変換する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedArticle {
	parsed := make([]model.ParsedArticle, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedArticle{
			Title:          item.Title,
			SourceURL:      item.Link,
			ContentSummary: item.Description,
		}

		// GUIDの設定: gofeedはGUIDをitem.GUIDに格納
		if item.GUID != "" {
			p.GuidOrID = item.GUID
		}

		// 概要が空の場合は本文を使用
		if p.ContentSummary == "" && item.Content != "" {
			p.ContentSummary = item.Content
		}

		// 公開日時
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		// サムネイル: フィードのメタデータ > 本文中の先頭画像
		p.ThumbnailURL = extractThumbnailURL(item)

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.SourceURL == "" && isHTTPURL(p.GuidOrID) {
			p.SourceURL = p.GuidOrID
		}

		parsed = append(parsed, p)
	}

	return parsed
}
