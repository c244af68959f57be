package article

import (
	"context"
	"fmt"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/query"
	"github.com/socialdev-club/soticle/internal/repository"
)

// DefaultPageSize はフィードページの既定件数。
const DefaultPageSize = 20

// ArticleQuerier はフィード取得に必要な記事ストアの問い合わせ操作。
type ArticleQuerier interface {
	List(ctx context.Context, filter query.Expr, order repository.Order, offset, limit int) ([]model.Article, error)
	ListWithLikesInWindow(ctx context.Context, filter query.Expr, windowStart time.Time) ([]model.Article, error)
}

// LikedIDsLister はユーザーのいいね済み記事ID集合の取得操作。
type LikedIDsLister interface {
	ListArticleIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// PlainTexter はHTML断片をプレーンテキストに変換する。
// 記事要約のメモリ内検索マッチングに使用する。
type PlainTexter interface {
	PlainText(html string) string
}

// Page はフィードの1ページ分の取得結果。
type Page struct {
	Items   []model.Article
	HasMore bool
}

// FeedService はFeedQueryを実行してフィードページを返すステートレスなサービス。
// カーソル管理や状態遷移は持たず、同じ入力に対して同じページを返す。
type FeedService struct {
	articles  ArticleQuerier
	likes     LikedIDsLister
	planner   *Planner
	plainText PlainTexter
	pageSize  int
	now       func() time.Time
}

// NewFeedService はFeedServiceを生成する。pageSizeが0以下の場合は既定値を使う。
func NewFeedService(
	articles ArticleQuerier,
	likes LikedIDsLister,
	planner *Planner,
	plainText PlainTexter,
	pageSize int,
) *FeedService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &FeedService{
		articles:  articles,
		likes:     likes,
		planner:   planner,
		plainText: plainText,
		pageSize:  pageSize,
		now:       time.Now,
	}
}

// PageSize はページ件数を返す。
func (s *FeedService) PageSize() int {
	return s.pageSize
}

// LikedArticleIDs はユーザーのいいね済み記事IDを取得する。
// likedOnlyフィルタの制約集合としてクエリ世代ごとに1回取得される。
func (s *FeedService) LikedArticleIDs(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, model.NewAuthRequiredError()
	}
	ids, err := s.likes.ListArticleIDsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("いいね済み記事IDの取得に失敗しました: %w", err)
	}
	// 空集合とフィルタなしを区別するため非nilで返す
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// FetchPage はFeedQueryを実行して [cursor, cursor+pageSize) のページを返す。
// likedIDsはlikedOnlyが有効な場合のいいね済みID集合で、無効な場合はnilを渡す。
func (s *FeedService) FetchPage(ctx context.Context, q FeedQuery, likedIDs []string, cursor int) (Page, error) {
	if q.LikedOnly {
		if likedIDs == nil {
			return Page{}, model.NewAuthRequiredError()
		}
		// いいねが1件もないユーザーはストアに問い合わせるまでもなく空
		if len(likedIDs) == 0 {
			return Page{}, nil
		}
	} else {
		likedIDs = nil
	}

	plan := s.planner.Build(q, likedIDs)

	if q.Sort == SortPopular {
		return s.fetchPopularPage(ctx, plan, q.Window, cursor)
	}
	return s.fetchLatestPage(ctx, plan, cursor)
}

// fetchLatestPage は最新順のページをストア側の1クエリで取得する。
// 全述語がサーバー側で評価され、hasMoreは満杯ページかどうかで判定する。
func (s *FeedService) fetchLatestPage(ctx context.Context, plan Plan, cursor int) (Page, error) {
	items, err := s.articles.List(ctx, plan.ServerFilter, repository.OrderPublishedDesc, cursor, s.pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("最新順フィードの取得に失敗しました: %w", err)
	}
	return Page{Items: items, HasMore: len(items) == s.pageSize}, nil
}

// fetchPopularPage は人気順のページを3段階のマージで取得する。
//  1. 窓内のいいねとJOINした行を取得し、記事IDごとのいいね数を集計する
//  2. 同じストア側述語で無窓の候補集合を取得し、窓内いいね0件の記事をcount 0で統合する
//  3. メモリ内述語（検索有効時の検索+カテゴリ）を適用し、
//     いいね数降順・公開日時降順・ID昇順に並べてページを切り出す
func (s *FeedService) fetchPopularPage(ctx context.Context, plan Plan, window Window, cursor int) (Page, error) {
	windowStart := window.Start(s.now())

	joined, err := s.articles.ListWithLikesInWindow(ctx, plan.ServerFilter, windowStart)
	if err != nil {
		return Page{}, fmt.Errorf("窓内いいね付き記事の取得に失敗しました: %w", err)
	}
	counts := tallyLikes(joined)

	candidates, err := s.articles.List(ctx, plan.ServerFilter, repository.OrderPublishedDesc, 0, 0)
	if err != nil {
		return Page{}, fmt.Errorf("人気順候補集合の取得に失敗しました: %w", err)
	}

	union := unionCandidates(joined, candidates)

	if plan.ClientFilter != nil {
		filtered := make([]model.Article, 0, len(union))
		for _, a := range union {
			if query.Eval(plan.ClientFilter, s.fieldGetter(&a)) {
				filtered = append(filtered, a)
			}
		}
		union = filtered
	}

	ranked := rankByPopularity(union, counts)
	items, hasMore := slicePage(ranked, cursor, s.pageSize)
	return Page{Items: items, HasMore: hasMore}, nil
}

// fieldGetter は式のフィールド名を記事の値に解決する。
// summaryはプレーンテキスト列でマッチングし、SQL側のcontent_text述語と同じ意味論を保つ。
// content_text未設定の旧レコードはサニタイズ済みHTMLからその場で抽出する。
func (s *FeedService) fieldGetter(a *model.Article) query.FieldGetter {
	return func(field string) string {
		switch field {
		case "id":
			return a.ID
		case "title":
			return a.Title
		case "summary":
			if a.ContentText != "" {
				return a.ContentText
			}
			return s.plainText.PlainText(a.ContentSummary)
		case "category":
			return a.Category
		case "source_url":
			return a.SourceURL
		default:
			return ""
		}
	}
}
