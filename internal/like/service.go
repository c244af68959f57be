package like

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/socialdev-club/soticle/internal/model"
)

// Service はAPIリクエスト単位のいいね操作を提供する。
// Storeと異なりキャッシュを持たず、呼び出しごとにユーザーIDを受け取る。
type Service struct {
	repo LikeQuerier
	now  func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo LikeQuerier) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Status は記事のいいね数と指定ユーザーのいいね状態を返す。
// userIDが空（匿名）の場合、IsLikedは常にfalse。
func (s *Service) Status(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	count, err := s.repo.CountByArticle(ctx, articleID)
	if err != nil {
		return model.LikeState{}, fmt.Errorf("いいね数の取得に失敗しました: %w", err)
	}

	state := model.LikeState{Count: count}
	if userID == "" {
		return state, nil
	}

	liked, err := s.repo.FindByArticleAndUser(ctx, articleID, userID)
	if err != nil {
		return model.LikeState{}, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
	}
	state.IsLiked = liked != nil

	return state, nil
}

// Toggle はユーザーの記事へのいいねを反転し、確定後の状態を返す。
// 未認証の場合はAUTH_REQUIREDエラーを返す。
func (s *Service) Toggle(ctx context.Context, articleID, userID string) (model.LikeState, error) {
	if userID == "" {
		return model.LikeState{}, model.NewAuthRequiredError()
	}

	existing, err := s.repo.FindByArticleAndUser(ctx, articleID, userID)
	if err != nil {
		return model.LikeState{}, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
	}

	if existing != nil {
		if err := s.repo.Delete(ctx, articleID, userID); err != nil {
			return model.LikeState{}, fmt.Errorf("いいねの削除に失敗しました: %w", err)
		}
	} else {
		newLike := &model.Like{
			ID:        uuid.NewString(),
			ArticleID: articleID,
			UserID:    userID,
			CreatedAt: s.now(),
		}
		if err := s.repo.Create(ctx, newLike); err != nil {
			return model.LikeState{}, fmt.Errorf("いいねの作成に失敗しました: %w", err)
		}
	}

	// 書き込み後の確定値を再取得する
	count, err := s.repo.CountByArticle(ctx, articleID)
	if err != nil {
		return model.LikeState{}, fmt.Errorf("いいね数の取得に失敗しました: %w", err)
	}

	return model.LikeState{Count: count, IsLiked: existing == nil}, nil
}
