package app

import (
	"context"
	"time"

	"github.com/socialdev-club/soticle/internal/article"
	"github.com/socialdev-club/soticle/internal/handler"
	"github.com/socialdev-club/soticle/internal/metrics"
	"github.com/socialdev-club/soticle/internal/model"
)

// instrumentedFeedService はフィードクエリの実行時間をメトリクスに記録するデコレータ。
type instrumentedFeedService struct {
	inner     *article.FeedService
	collector metrics.MetricsCollector
}

func newInstrumentedFeedService(inner *article.FeedService, collector metrics.MetricsCollector) *instrumentedFeedService {
	return &instrumentedFeedService{
		inner:     inner,
		collector: collector,
	}
}

func (s *instrumentedFeedService) FetchPage(ctx context.Context, q article.FeedQuery, likedIDs []string, cursor int) (article.Page, error) {
	start := time.Now()
	page, err := s.inner.FetchPage(ctx, q, likedIDs, cursor)
	if err == nil {
		s.collector.RecordFeedQuery(string(q.Sort), time.Since(start))
	}
	return page, err
}

func (s *instrumentedFeedService) LikedArticleIDs(ctx context.Context, userID string) ([]string, error) {
	return s.inner.LikedArticleIDs(ctx, userID)
}

// instrumentedLikeService はいいね切り替え回数をメトリクスに記録するデコレータ。
type instrumentedLikeService struct {
	inner     handler.LikeServiceInterface
	collector metrics.MetricsCollector
}

func newInstrumentedLikeService(inner handler.LikeServiceInterface, collector metrics.MetricsCollector) *instrumentedLikeService {
	return &instrumentedLikeService{
		inner:     inner,
		collector: collector,
	}
}

func (s *instrumentedLikeService) Status(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	return s.inner.Status(ctx, articleID, userID)
}

func (s *instrumentedLikeService) Toggle(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	state, err := s.inner.Toggle(ctx, articleID, userID)
	if err == nil {
		s.collector.RecordLikeToggle()
	}
	return state, err
}

var (
	_ handler.FeedServiceInterface = (*instrumentedFeedService)(nil)
	_ handler.LikeServiceInterface = (*instrumentedLikeService)(nil)
)
