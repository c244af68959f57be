package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/socialdev-club/soticle/internal/article"
	"github.com/socialdev-club/soticle/internal/metrics"
	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/query"
	"github.com/socialdev-club/soticle/internal/repository"
	"github.com/socialdev-club/soticle/internal/search"
	"github.com/socialdev-club/soticle/internal/source"
)

// --- モック ---

type mockLikeService struct {
	toggleFn func(ctx context.Context, articleID, userID string) (model.LikeState, error)
}

func (m *mockLikeService) Status(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	return model.LikeState{}, nil
}

func (m *mockLikeService) Toggle(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	return m.toggleFn(ctx, articleID, userID)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name, labelValue string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather returned error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetValue() == labelValue {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

// --- テスト ---

// TestInstrumentedLikeService_RecordsToggleOnSuccess は成功したいいね切り替えがカウンターに記録されることを検証する。
func TestInstrumentedLikeService_RecordsToggleOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	inner := &mockLikeService{
		toggleFn: func(ctx context.Context, articleID, userID string) (model.LikeState, error) {
			return model.LikeState{Count: 1, IsLiked: true}, nil
		},
	}
	svc := newInstrumentedLikeService(inner, collector)

	state, err := svc.Toggle(context.Background(), "article-1", "user-1")
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if !state.IsLiked {
		t.Error("expected IsLiked = true")
	}

	if got := counterValue(t, reg, "soticle_like_toggles_total"); got != 1 {
		t.Errorf("soticle_like_toggles_total = %v, want 1", got)
	}
}

// TestInstrumentedLikeService_SkipsRecordOnError は失敗した切り替えがカウントされないことを検証する。
func TestInstrumentedLikeService_SkipsRecordOnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	inner := &mockLikeService{
		toggleFn: func(ctx context.Context, articleID, userID string) (model.LikeState, error) {
			return model.LikeState{}, fmt.Errorf("db error")
		},
	}
	svc := newInstrumentedLikeService(inner, collector)

	_, err := svc.Toggle(context.Background(), "article-1", "user-1")
	if err == nil {
		t.Fatal("expected error from inner service")
	}

	if got := counterValue(t, reg, "soticle_like_toggles_total"); got != 0 {
		t.Errorf("soticle_like_toggles_total = %v, want 0", got)
	}
}

type stubArticleQuerier struct{}

func (s *stubArticleQuerier) List(ctx context.Context, filter query.Expr, order repository.Order, offset, limit int) ([]model.Article, error) {
	return nil, nil
}

func (s *stubArticleQuerier) ListWithLikesInWindow(ctx context.Context, filter query.Expr, windowStart time.Time) ([]model.Article, error) {
	return nil, nil
}

type stubLikedIDsLister struct{}

func (s *stubLikedIDsLister) ListArticleIDsByUser(ctx context.Context, userID string) ([]string, error) {
	return nil, nil
}

type stubPlainTexter struct{}

func (s *stubPlainTexter) PlainText(html string) string { return html }

// TestInstrumentedFeedService_RecordsQueryDuration はフィード取得がソート別ヒストグラムに記録されることを検証する。
func TestInstrumentedFeedService_RecordsQueryDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	inner := article.NewFeedService(
		&stubArticleQuerier{}, &stubLikedIDsLister{},
		article.NewPlanner(search.NewParser(source.IsRegisteredKey)),
		&stubPlainTexter{}, 20,
	)
	svc := newInstrumentedFeedService(inner, collector)

	_, err := svc.FetchPage(context.Background(), article.NewFeedQuery(), nil, 0)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if got := histogramSampleCount(t, reg, "soticle_feed_query_duration_seconds", "latest"); got != 1 {
		t.Errorf("latest sample count = %d, want 1", got)
	}
}

// TestHistogramHelper_UnknownMetricReturnsZero はヘルパー自体の健全性チェック。
func TestHistogramHelper_UnknownMetricReturnsZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = metrics.NewCollector(reg)

	if got := histogramSampleCount(t, reg, "soticle_feed_query_duration_seconds", "latest"); got != 0 {
		t.Errorf("sample count = %d, want 0", got)
	}
}

// TestStartMetricsServer_ServesOnPort はメトリクスサーバーが起動してシャットダウンできることを検証する。
func TestStartMetricsServer_ServesOnPort(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = metrics.NewCollector(reg)

	server := startMetricsServer("0", reg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !strings.Contains(err.Error(), "closed") {
		t.Errorf("Shutdown returned error: %v", err)
	}
}
