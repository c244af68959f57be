// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/query"
)

// Order は記事一覧の並び順を表す。
type Order struct {
	Field      string // "published_at"（created_atで代替） または "created_at"
	Descending bool
}

// OrderPublishedDesc は公開日時降順（最新順）の並び指定。
var OrderPublishedDesc = Order{Field: "published_at", Descending: true}

// ArticleRepository は記事データの永続化インターフェース。
// フィードエンジンが使用する問い合わせ操作と、ワーカーが使用するUPSERT系操作を提供する。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// List はフィルタ式に一致する記事をオフセット/リミット付きで取得する。
	// filterがnilの場合は全件が対象になる。limitが0以下の場合はリミットなし。
	List(ctx context.Context, filter query.Expr, order Order, offset, limit int) ([]model.Article, error)

	// ListWithLikesInWindow はlikesとのINNER JOINにより、
	// created_at >= windowStart のいいね1件につき記事1行を返す。
	// 同一記事の行数がその記事の窓内いいね数になる。
	// 窓内にいいねを持たない記事は構造上結果から除外される点に注意。
	ListWithLikesInWindow(ctx context.Context, filter query.Expr, windowStart time.Time) ([]model.Article, error)

	// FindBySourceAndGUID はsource_idとguid_or_idで記事を検索する。
	// 同一性判定の最優先手段。見つからない場合はnilを返す。
	FindBySourceAndGUID(ctx context.Context, sourceID, guid string) (*model.Article, error)

	// FindBySourceAndURL はsource_idとsource_urlで記事を検索する。
	// 同一性判定の第2優先手段。見つからない場合はnilを返す。
	FindBySourceAndURL(ctx context.Context, sourceID, articleURL string) (*model.Article, error)

	// FindByContentHash はsource_idとcontent_hashで記事を検索する。
	// 同一性判定の第3優先手段。見つからない場合はnilを返す。
	FindByContentHash(ctx context.Context, sourceID, contentHash string) (*model.Article, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// Update は既存記事を上書き更新する。履歴は保持しない。
	Update(ctx context.Context, article *model.Article) error
}

// LikeRepository はいいねデータの永続化インターフェース。
type LikeRepository interface {
	// CountByArticle は記事のいいね総数を返す。
	CountByArticle(ctx context.Context, articleID string) (int, error)

	// FindByArticleAndUser はユーザーの記事へのいいねを取得する。見つからない場合はnilを返す。
	FindByArticleAndUser(ctx context.Context, articleID, userID string) (*model.Like, error)

	// Create はいいねを作成する。(article_id, user_id) が既に存在する場合はエラーを返す。
	Create(ctx context.Context, like *model.Like) error

	// Delete はユーザーの記事へのいいねを削除する。
	Delete(ctx context.Context, articleID, userID string) error

	// ListArticleIDsByUser はユーザーがいいねした記事IDの一覧を返す。
	ListArticleIDsByUser(ctx context.Context, userID string) ([]string, error)

	// DeleteByUserID はユーザーの全いいねを削除する。退会処理で使用する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SourceRepository は収集対象ソースの永続化インターフェース。
type SourceRepository interface {
	// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Source, error)

	// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// Update はソース情報を更新する。
	Update(ctx context.Context, source *model.Source) error

	// UpdateFavicon はソースのfaviconデータを更新する。
	UpdateFavicon(ctx context.Context, sourceID string, faviconData []byte, faviconMime string) error

	// ListDueForFetch はフェッチ対象のソースを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.Source, error)

	// UpdateFetchState はソースのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、next_fetch_at、
	// feed_url、etag、last_modifiedを更新する。
	UpdateFetchState(ctx context.Context, source *model.Source) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentitiesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
