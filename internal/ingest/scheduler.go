// Package ingest はソースのバックグラウンド収集処理を提供する。
// スケジューラ、フェッチャー、フィードURL自動検出、
// リトライ/バックオフ戦略、記事UPSERTを含む。
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/repository"
)

// SourceFetcherService はソースフェッチの実行インターフェース。
type SourceFetcherService interface {
	// Fetch は指定ソースをフェッチし、結果に応じてソース状態を更新する。
	Fetch(ctx context.Context, src *model.Source) error
}

// Scheduler はソースフェッチのスケジューリングと並列制御を行う。
// 一定間隔のティッカーでフェッチ対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながらフェッチを実行する。
type Scheduler struct {
	sourceRepo     repository.SourceRepository
	fetcher        SourceFetcherService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	sourceRepo repository.SourceRepository,
	fetcher SourceFetcherService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("収集スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("収集サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("収集スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("収集サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はフェッチ対象ソースを1回取得し、並列でフェッチを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// フェッチ対象ソースを取得（FOR UPDATE SKIP LOCKED）
	sources, err := s.sourceRepo.ListDueForFetch(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("フェッチ対象のソースはありません")
		return nil
	}

	s.logger.Info("収集サイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(sc *model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.fetcher.Fetch(ctx, sc); err != nil {
				s.logger.Error("ソースのフェッチに失敗しました",
					slog.String("source_id", sc.ID),
					slog.String("feed_url", sc.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(src)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("収集サイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
