package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/query"
)

// articleColumns はSELECTで取得する記事カラムの並び。
const articleColumns = `a.id, a.source_id, a.guid_or_id, a.title, a.content_summary,
	       a.content_text, a.category, a.source_url, a.thumbnail_url, a.published_at,
	       a.content_hash, a.daily_views, a.weekly_views, a.monthly_views,
	       a.created_at, a.updated_at`

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// articleColumn はフィルタ式のフィールド名をカラム名に解決する。
// summaryはプレーンテキスト列に解決する。content_summaryはサニタイズ済みHTMLのため、
// 直接ILIKEするとタグ名やhref断片が検索語にマッチしてしまう。
// 未知のフィールド名はそのままエイリアス付きで返す（マイグレーションと同期した閉じた集合のため）。
func articleColumn(field string) string {
	switch field {
	case "summary":
		return "a.content_text"
	default:
		return "a." + field
	}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.id = $1`,
		id,
	)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return article, nil
}

// List はフィルタ式に一致する記事をオフセット/リミット付きで取得する。
func (r *PostgresArticleRepo) List(
	ctx context.Context,
	filter query.Expr,
	order Order,
	offset, limit int,
) ([]model.Article, error) {
	baseQuery := `SELECT ` + articleColumns + ` FROM articles a`

	argIndex := 1
	clause, args := query.ToSQL(filter, articleColumn, &argIndex)
	if clause != "" {
		baseQuery += " WHERE " + clause
	}

	baseQuery += " ORDER BY " + orderClause(order)

	if limit > 0 {
		baseQuery += fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
		args = append(args, offset, limit)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// ListWithLikesInWindow はlikesとのINNER JOINにより、窓内のいいね1件につき記事1行を返す。
// 同一記事の行数がその記事の窓内いいね数になる。
func (r *PostgresArticleRepo) ListWithLikesInWindow(
	ctx context.Context,
	filter query.Expr,
	windowStart time.Time,
) ([]model.Article, error) {
	baseQuery := `SELECT ` + articleColumns + `
		 FROM articles a
		 INNER JOIN likes l ON l.article_id = a.id
		 WHERE l.created_at >= $1`

	argIndex := 2
	args := []interface{}{windowStart}

	clause, filterArgs := query.ToSQL(filter, articleColumn, &argIndex)
	if clause != "" {
		baseQuery += " AND (" + clause + ")"
		args = append(args, filterArgs...)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("窓内いいね付き記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectArticles(rows)
}

// FindBySourceAndGUID はsource_idとguid_or_idで記事を検索する。
func (r *PostgresArticleRepo) FindBySourceAndGUID(ctx context.Context, sourceID, guid string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.source_id = $1 AND a.guid_or_id = $2`,
		sourceID, guid,
	)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GUID による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// FindBySourceAndURL はsource_idとsource_urlで記事を検索する。
func (r *PostgresArticleRepo) FindBySourceAndURL(ctx context.Context, sourceID, articleURL string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.source_id = $1 AND a.source_url = $2`,
		sourceID, articleURL,
	)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URL による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// FindByContentHash はsource_idとcontent_hashで記事を検索する。
func (r *PostgresArticleRepo) FindByContentHash(ctx context.Context, sourceID, contentHash string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles a WHERE a.source_id = $1 AND a.content_hash = $2`,
		sourceID, contentHash,
	)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content_hash による記事の検索に失敗しました: %w", err)
	}
	return article, nil
}

// Create は新規記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, source_id, guid_or_id, title, content_summary,
		                       content_text, category, source_url, thumbnail_url, published_at,
		                       content_hash, daily_views, weekly_views, monthly_views,
		                       created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		article.ID, article.SourceID, nullString(article.GuidOrID), article.Title,
		nullString(article.ContentSummary), article.ContentText, article.Category,
		article.SourceURL, nullString(article.ThumbnailURL), article.PublishedAt,
		nullString(article.ContentHash),
		article.DailyViews, article.WeeklyViews, article.MonthlyViews,
		article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存記事を上書き更新する。履歴は保持しない。
func (r *PostgresArticleRepo) Update(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET
		    guid_or_id = $2, title = $3, content_summary = $4, content_text = $5,
		    category = $6, source_url = $7, thumbnail_url = $8, published_at = $9,
		    content_hash = $10, updated_at = $11
		 WHERE id = $1`,
		article.ID, nullString(article.GuidOrID), article.Title,
		nullString(article.ContentSummary), article.ContentText, article.Category,
		article.SourceURL, nullString(article.ThumbnailURL), article.PublishedAt,
		nullString(article.ContentHash), article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// orderClause はOrderをORDER BY句に変換する。
// published_atは未設定の記事があるためcreated_atで代替する。
func orderClause(order Order) string {
	column := "a.created_at"
	if order.Field == "published_at" || order.Field == "" {
		column = "COALESCE(a.published_at, a.created_at)"
	}
	direction := "ASC"
	if order.Descending {
		direction = "DESC"
	}
	// ページングの安定性のため最終キーとしてidを付ける
	return fmt.Sprintf("%s %s, a.id ASC", column, direction)
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanArticle は1行を記事にスキャンする。
func scanArticle(row rowScanner) (*model.Article, error) {
	article := &model.Article{}
	var publishedAt sql.NullTime
	var guidOrID, contentSummary, thumbnailURL, contentHash sql.NullString

	err := row.Scan(
		&article.ID, &article.SourceID, &guidOrID, &article.Title, &contentSummary,
		&article.ContentText, &article.Category, &article.SourceURL, &thumbnailURL,
		&publishedAt, &contentHash,
		&article.DailyViews, &article.WeeklyViews, &article.MonthlyViews,
		&article.CreatedAt, &article.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	article.GuidOrID = nullStringValue(guidOrID)
	article.ContentSummary = nullStringValue(contentSummary)
	article.ThumbnailURL = nullStringValue(thumbnailURL)
	article.ContentHash = nullStringValue(contentHash)
	if publishedAt.Valid {
		article.PublishedAt = &publishedAt.Time
	}

	return article, nil
}

// collectArticles は全行を記事スライスに変換する。
func collectArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullStringValue はNULL許容カラムの値を文字列に変換する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
