package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/repository"
	"github.com/socialdev-club/soticle/internal/security"
	"github.com/socialdev-club/soticle/internal/source"
)

// ArticleUpsertService は記事の同一性判定とUPSERT処理を提供する。
// 3段階の同一性判定ロジックにより、重複登録を防ぎつつ既存記事の上書き更新を行う。
type ArticleUpsertService struct {
	articleRepo repository.ArticleRepository
	sanitizer   security.ContentSanitizerService
}

// NewArticleUpsertService はArticleUpsertServiceの新しいインスタンスを生成する。
func NewArticleUpsertService(
	articleRepo repository.ArticleRepository,
	sanitizer security.ContentSanitizerService,
) *ArticleUpsertService {
	return &ArticleUpsertService{
		articleRepo: articleRepo,
		sanitizer:   sanitizer,
	}
}

// UpsertArticles はソースから取得した記事をUPSERTする。
// 3段階の同一性判定ロジック:
//  1. (source_id, guid_or_id) - 最優先
//  2. (source_id, source_url) - 第2優先
//  3. hash(title + published + summary) - 第3優先
//
// 記事のカテゴリはソースのカテゴリを引き継ぐ。
// 戻り値は挿入数、更新数、エラー。
func (s *ArticleUpsertService) UpsertArticles(
	ctx context.Context,
	src *model.Source,
	items []model.ParsedArticle,
) (inserted int, updated int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	now := time.Now()

	for _, parsed := range items {
		// 概要にサニタイズ処理を適用し、検索用のプレーンテキストも抽出する
		sanitizedSummary := s.sanitizer.Sanitize(parsed.ContentSummary)
		plainText := s.sanitizer.PlainText(sanitizedSummary)

		// content_hashを計算（サニタイズ後の概要を使用）
		contentHash := computeContentHash(parsed.Title, parsed.PublishedAt, sanitizedSummary)

		// 3段階の同一性判定で既存記事を検索
		existing, findErr := s.findExistingArticle(ctx, src.ID, parsed, contentHash)
		if findErr != nil {
			slog.Error("記事の同一性判定でエラー",
				"source_id", src.ID,
				"guid_or_id", parsed.GuidOrID,
				"error", findErr,
			)
			return inserted, updated, fmt.Errorf("記事の同一性判定に失敗しました: %w", findErr)
		}

		if existing != nil {
			// 既存記事を上書き更新
			updateErr := s.updateExistingArticle(ctx, existing, src, parsed, sanitizedSummary, plainText, contentHash, now)
			if updateErr != nil {
				slog.Error("記事の更新でエラー",
					"source_id", src.ID,
					"article_id", existing.ID,
					"error", updateErr,
				)
				return inserted, updated, fmt.Errorf("記事の更新に失敗しました: %w", updateErr)
			}
			updated++
		} else {
			// 新規記事を挿入
			createErr := s.createNewArticle(ctx, src, parsed, sanitizedSummary, plainText, contentHash, now)
			if createErr != nil {
				slog.Error("記事の挿入でエラー",
					"source_id", src.ID,
					"guid_or_id", parsed.GuidOrID,
					"error", createErr,
				)
				return inserted, updated, fmt.Errorf("記事の挿入に失敗しました: %w", createErr)
			}
			inserted++
		}
	}

	slog.Info("記事UPSERT完了",
		"source_id", src.ID,
		"inserted", inserted,
		"updated", updated,
	)

	return inserted, updated, nil
}

// findExistingArticle は3段階の同一性判定で既存記事を検索する。
// 優先順位: (source_id, guid_or_id) > (source_id, source_url) > hash(title+published+summary)
func (s *ArticleUpsertService) findExistingArticle(
	ctx context.Context,
	sourceID string,
	parsed model.ParsedArticle,
	contentHash string,
) (*model.Article, error) {
	// 第1優先: source_id + guid_or_id
	if parsed.GuidOrID != "" {
		article, err := s.articleRepo.FindBySourceAndGUID(ctx, sourceID, parsed.GuidOrID)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	// 第2優先: source_id + source_url
	if parsed.SourceURL != "" {
		article, err := s.articleRepo.FindBySourceAndURL(ctx, sourceID, parsed.SourceURL)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	// 第3優先: content_hash
	if contentHash != "" {
		article, err := s.articleRepo.FindByContentHash(ctx, sourceID, contentHash)
		if err != nil {
			return nil, err
		}
		if article != nil {
			return article, nil
		}
	}

	return nil, nil
}

// updateExistingArticle は既存記事を上書き更新する。履歴は保持しない。
func (s *ArticleUpsertService) updateExistingArticle(
	ctx context.Context,
	existing *model.Article,
	src *model.Source,
	parsed model.ParsedArticle,
	sanitizedSummary, plainText, contentHash string,
	now time.Time,
) error {
	existing.GuidOrID = parsed.GuidOrID
	existing.Title = parsed.Title
	existing.SourceURL = parsed.SourceURL
	existing.ContentSummary = sanitizedSummary
	existing.ContentText = plainText
	existing.Category = src.Category
	existing.ThumbnailURL = resolveThumbnail(parsed)
	existing.ContentHash = contentHash
	existing.UpdatedAt = now

	// published_atの設定: parsed.PublishedAtがnilの場合は既存の値を維持
	if parsed.PublishedAt != nil {
		existing.PublishedAt = parsed.PublishedAt
	}

	return s.articleRepo.Update(ctx, existing)
}

// createNewArticle は新規記事を作成する。
// published_at未設定の場合はnilのまま保存し、並び替えはcreated_atで代替される。
func (s *ArticleUpsertService) createNewArticle(
	ctx context.Context,
	src *model.Source,
	parsed model.ParsedArticle,
	sanitizedSummary, plainText, contentHash string,
	now time.Time,
) error {
	article := &model.Article{
		ID:             uuid.New().String(),
		SourceID:       src.ID,
		GuidOrID:       parsed.GuidOrID,
		Title:          parsed.Title,
		SourceURL:      parsed.SourceURL,
		ContentSummary: sanitizedSummary,
		ContentText:    plainText,
		Category:       src.Category,
		ThumbnailURL:   resolveThumbnail(parsed),
		PublishedAt:    parsed.PublishedAt,
		ContentHash:    contentHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return s.articleRepo.Create(ctx, article)
}

// resolveThumbnail は記事のサムネイルURLを決定する。
// フィードから抽出できなかった場合は掲載元レジストリの代替サムネイルを使用する。
func resolveThumbnail(parsed model.ParsedArticle) string {
	if parsed.ThumbnailURL != "" {
		return parsed.ThumbnailURL
	}
	return source.Resolve(parsed.SourceURL).FallbackThumbnail
}

// computeContentHash はtitle + published + summaryのSHA-256ハッシュを計算する。
// 同一性判定の第3優先手段として使用される。
func computeContentHash(title string, publishedAt *time.Time, summary string) string {
	pubStr := ""
	if publishedAt != nil {
		pubStr = publishedAt.UTC().Format(time.RFC3339)
	}
	data := fmt.Sprintf("%s|%s|%s", title, pubStr, summary)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
