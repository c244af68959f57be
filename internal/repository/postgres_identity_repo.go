package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/socialdev-club/soticle/internal/model"
)

// PostgresIdentityRepo はidentitiesテーブルへの問い合わせを提供する。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID は(provider, provider_user_id)でidentityを
// 検索する。OAuthログイン時のユーザー同一性判定に使う。見つからない場合はnil。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	)

	identity := &model.Identity{}
	err := row.Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &identity.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identityの検索に失敗しました: %w", err)
	}
	return identity, nil
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
