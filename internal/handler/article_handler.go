package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/socialdev-club/soticle/internal/article"
	"github.com/socialdev-club/soticle/internal/middleware"
	"github.com/socialdev-club/soticle/internal/model"
)

// FeedServiceInterface は記事フィードハンドラーが必要とするサービスインターフェース。
type FeedServiceInterface interface {
	// FetchPage はクエリ条件に一致する記事の1ページを返す。
	FetchPage(ctx context.Context, q article.FeedQuery, likedIDs []string, cursor int) (article.Page, error)
	// LikedArticleIDs はユーザーがいいねした記事IDの一覧を返す。
	LikedArticleIDs(ctx context.Context, userID string) ([]string, error)
}

// ArticleFinder は記事詳細取得のインターフェース。
type ArticleFinder interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)
}

// LikeServiceInterface はいいね操作のサービスインターフェース。
type LikeServiceInterface interface {
	// Status は記事のいいね数と指定ユーザーのいいね状態を返す。
	Status(ctx context.Context, articleID, userID string) (model.LikeState, error)
	// Toggle はユーザーの記事へのいいねを反転し、確定後の状態を返す。
	Toggle(ctx context.Context, articleID, userID string) (model.LikeState, error)
}

// ArticleHandler は記事フィードといいねのHTTPハンドラー。
type ArticleHandler struct {
	feed   FeedServiceInterface
	finder ArticleFinder
	likes  LikeServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(feed FeedServiceInterface, finder ArticleFinder, likes LikeServiceInterface) *ArticleHandler {
	return &ArticleHandler{
		feed:   feed,
		finder: finder,
		likes:  likes,
	}
}

// --- レスポンス型 ---

// articleSummaryResponse は記事一覧のサマリーレスポンス。
type articleSummaryResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"` // サニタイズ済みHTML
	Category     string    `json:"category"`
	SourceURL    string    `json:"source_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// articleListResponse は記事一覧のレスポンス。
type articleListResponse struct {
	Items      []articleSummaryResponse `json:"items"`
	HasMore    bool                     `json:"has_more"`
	NextOffset int                      `json:"next_offset"`
}

// likeStateResponse はいいね状態のレスポンス。
type likeStateResponse struct {
	ArticleID string `json:"article_id"`
	Count     int    `json:"count"`
	IsLiked   bool   `json:"is_liked"`
}

// ListArticles は記事フィードの1ページを返す。
// GET /api/articles?categories=AI,백엔드&sort=latest|popular&window=day|week|month|all&q=검색어&liked_only=true&offset=0
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseFeedQuery(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "offsetは0以上の整数で指定してください。",
				Category: "validation",
				Action:   "offsetパラメータを確認してください。",
			})
			return
		}
		offset = n
	}

	// いいね済みフィルタは認証必須。匿名ユーザーにはnilを渡す
	var likedIDs []string
	userID, _ := middleware.UserIDFromContext(r.Context())
	if q.LikedOnly {
		if userID == "" {
			writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
			return
		}
		ids, err := h.feed.LikedArticleIDs(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		likedIDs = ids
	}

	page, err := h.feed.FetchPage(r.Context(), q, likedIDs, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]articleSummaryResponse, len(page.Items))
	for i := range page.Items {
		items[i] = toArticleSummaryResponse(&page.Items[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(articleListResponse{
		Items:      items,
		HasMore:    page.HasMore,
		NextOffset: offset + len(items),
	})
}

// GetArticle は記事詳細を返す。
// GET /api/articles/:id
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "id")

	a, err := h.finder.FindByID(r.Context(), articleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if a == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(articleID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toArticleSummaryResponse(a))
}

// GetLikeState は記事のいいね数とリクエストユーザーのいいね状態を返す。
// GET /api/articles/:id/likes
func (h *ArticleHandler) GetLikeState(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "id")
	userID, _ := middleware.UserIDFromContext(r.Context())

	state, err := h.likes.Status(r.Context(), articleID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(likeStateResponse{
		ArticleID: articleID,
		Count:     state.Count,
		IsLiked:   state.IsLiked,
	})
}

// ToggleLike はリクエストユーザーの記事へのいいねを反転する。
// PUT /api/articles/:id/like
func (h *ArticleHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	articleID := chi.URLParam(r, "id")

	// 記事の存在確認
	a, err := h.finder.FindByID(r.Context(), articleID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if a == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(articleID))
		return
	}

	state, err := h.likes.Toggle(r.Context(), articleID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(likeStateResponse{
		ArticleID: articleID,
		Count:     state.Count,
		IsLiked:   state.IsLiked,
	})
}

// --- ヘルパー関数 ---

// parseFeedQuery はクエリパラメータからFeedQueryを構築する。
func parseFeedQuery(r *http.Request) (article.FeedQuery, *model.APIError) {
	q := article.NewFeedQuery()
	params := r.URL.Query()

	if v := params.Get("sort"); v != "" {
		sort := article.Sort(v)
		if !article.IsValidSort(sort) {
			return q, model.NewInvalidSortError(v)
		}
		q.Sort = sort
	}

	if v := params.Get("window"); v != "" {
		window := article.Window(v)
		if !article.IsValidWindow(window) {
			return q, model.NewInvalidWindowError(v)
		}
		q.Window = window
	}

	if v := params.Get("categories"); v != "" {
		names := strings.Split(v, ",")
		for _, name := range names {
			if !model.IsValidCategory(name) {
				return q, model.NewInvalidCategoryError(name)
			}
		}
		q.Categories = article.NewCategorySetFrom(names)
	}

	q.SearchTerm = params.Get("q")
	q.LikedOnly = params.Get("liked_only") == "true"

	return q, nil
}

// toArticleSummaryResponse はmodel.ArticleからAPIレスポンスに変換する。
func toArticleSummaryResponse(a *model.Article) articleSummaryResponse {
	return articleSummaryResponse{
		ID:           a.ID,
		Title:        a.Title,
		Summary:      a.ContentSummary,
		Category:     a.Category,
		SourceURL:    a.SourceURL,
		ThumbnailURL: a.ThumbnailURL,
		PublishedAt:  a.EffectivePublishedAt(),
	}
}
