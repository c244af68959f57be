package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/socialdev-club/soticle/internal/model"
)

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
type PostgresLikeRepo struct {
	db *sql.DB
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db *sql.DB) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// CountByArticle は記事のいいね総数を返す。
func (r *PostgresLikeRepo) CountByArticle(ctx context.Context, articleID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE article_id = $1`,
		articleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("いいね数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// FindByArticleAndUser はユーザーの記事へのいいねを取得する。見つからない場合はnilを返す。
func (r *PostgresLikeRepo) FindByArticleAndUser(ctx context.Context, articleID, userID string) (*model.Like, error) {
	like := &model.Like{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, article_id, user_id, created_at
		 FROM likes WHERE article_id = $1 AND user_id = $2`,
		articleID, userID,
	).Scan(&like.ID, &like.ArticleID, &like.UserID, &like.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("いいねの検索に失敗しました: %w", err)
	}
	return like, nil
}

// Create はいいねを作成する。(article_id, user_id) のUNIQUE制約違反はエラーになる。
func (r *PostgresLikeRepo) Create(ctx context.Context, like *model.Like) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO likes (id, article_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		like.ID, like.ArticleID, like.UserID, like.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("いいねの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete はユーザーの記事へのいいねを削除する。
func (r *PostgresLikeRepo) Delete(ctx context.Context, articleID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM likes WHERE article_id = $1 AND user_id = $2`,
		articleID, userID,
	)
	if err != nil {
		return fmt.Errorf("いいねの削除に失敗しました: %w", err)
	}
	return nil
}

// ListArticleIDsByUser はユーザーがいいねした記事IDの一覧を返す。
func (r *PostgresLikeRepo) ListArticleIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id FROM likes WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("いいね済み記事IDの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("いいね済み記事IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("いいね済み記事IDの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// DeleteByUserID はユーザーの全いいねを削除する。退会処理で使用する。
func (r *PostgresLikeRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ユーザーのいいね削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LikeRepository = (*PostgresLikeRepo)(nil)
