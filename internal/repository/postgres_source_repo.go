package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/socialdev-club/soticle/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// sourceColumns はSELECTで取得するソースカラムの並び。
const sourceColumns = `id, name, site_url, feed_url, category, favicon_data, favicon_mime,
	        etag, last_modified, fetch_status, consecutive_errors,
	        error_message, next_fetch_at, created_at, updated_at`

// scanSource は1行をソースにスキャンする。
func scanSource(row rowScanner) (*model.Source, error) {
	src := &model.Source{}
	var faviconData []byte
	var feedURL, faviconMime, etag, lastModified, errorMessage sql.NullString

	err := row.Scan(
		&src.ID, &src.Name, &src.SiteURL, &feedURL, &src.Category,
		&faviconData, &faviconMime,
		&etag, &lastModified, &src.FetchStatus, &src.ConsecutiveErrors,
		&errorMessage, &src.NextFetchAt, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	src.FaviconData = faviconData
	src.FeedURL = nullStringValue(feedURL)
	src.FaviconMime = nullStringValue(faviconMime)
	src.ETag = nullStringValue(etag)
	src.LastModified = nullStringValue(lastModified)
	src.ErrorMessage = nullStringValue(errorMessage)

	return src, nil
}

// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`,
		id,
	)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	return src, nil
}

// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE feed_url = $1`,
		feedURL,
	)

	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるソースの検索に失敗しました: %w", err)
	}
	return src, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, site_url, feed_url, category, favicon_data, favicon_mime,
		                      etag, last_modified, fetch_status, consecutive_errors,
		                      error_message, next_fetch_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		source.ID, source.Name, source.SiteURL, nullString(source.FeedURL), source.Category,
		source.FaviconData, nullString(source.FaviconMime),
		nullString(source.ETag), nullString(source.LastModified),
		source.FetchStatus, source.ConsecutiveErrors,
		nullString(source.ErrorMessage), source.NextFetchAt,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はソース情報を更新する。
func (r *PostgresSourceRepo) Update(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    name = $2, site_url = $3, feed_url = $4, category = $5,
		    etag = $6, last_modified = $7, fetch_status = $8,
		    consecutive_errors = $9, error_message = $10,
		    next_fetch_at = $11, updated_at = $12
		 WHERE id = $1`,
		source.ID, source.Name, source.SiteURL, nullString(source.FeedURL), source.Category,
		nullString(source.ETag), nullString(source.LastModified),
		source.FetchStatus, source.ConsecutiveErrors,
		nullString(source.ErrorMessage), source.NextFetchAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateFavicon はソースのfaviconデータを更新する。
func (r *PostgresSourceRepo) UpdateFavicon(ctx context.Context, sourceID string, faviconData []byte, faviconMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET favicon_data = $2, favicon_mime = $3, updated_at = now() WHERE id = $1`,
		sourceID, faviconData, nullString(faviconMime),
	)
	if err != nil {
		return fmt.Errorf("faviconの更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象のソースを取得する。
// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+`
		 FROM sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("フェッチ対象ソースの読み取りに失敗しました: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フェッチ対象ソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateFetchState はソースのフェッチ状態を更新する。
// 自動検出されたfeed_urlもここで永続化される。
func (r *PostgresSourceRepo) UpdateFetchState(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    fetch_status = $2,
		    consecutive_errors = $3,
		    error_message = $4,
		    next_fetch_at = $5,
		    feed_url = $6,
		    etag = $7,
		    last_modified = $8,
		    updated_at = now()
		 WHERE id = $1`,
		source.ID,
		source.FetchStatus,
		source.ConsecutiveErrors,
		nullString(source.ErrorMessage),
		source.NextFetchAt,
		nullString(source.FeedURL),
		nullString(source.ETag),
		nullString(source.LastModified),
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
