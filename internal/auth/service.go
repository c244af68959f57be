// Package auth はOAuth認証フローとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/socialdev-club/soticle/internal/model"
	"github.com/socialdev-club/soticle/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "github" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はOAuthコールバックの処理とセッションの発行・破棄を担う。
// ユーザーの同一性は(provider, provider_user_id)のidentityで判定し、
// メールアドレスでは判定しない。プロバイダー側のメール変更に影響されないため。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを検証してセッションを発行する。
// identityが未登録の場合はusersとidentitiesを同一トランザクションで作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("認可コードの交換に失敗しました: %w", err)
	}

	userID, err := s.resolveUserID(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("セッションの発行に失敗しました: %w", err)
	}
	return session, nil
}

// resolveUserID はOAuthユーザー情報をローカルのユーザーIDに解決する。
// identityが存在すればそのユーザーでログインし、なければ新規登録する。
func (s *Service) resolveUserID(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("identityの検索に失敗しました: %w", err)
	}

	if identity != nil {
		slog.Info("既存ユーザーがログイン",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	return s.registerUser(ctx, info)
}

// registerUser は初回ログインのユーザーを登録する。
func (s *Service) registerUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		return "", fmt.Errorf("ユーザーとidentityの作成に失敗しました: %w", err)
	}

	slog.Info("新規ユーザーを登録",
		slog.String("user_id", user.ID),
		slog.String("email", info.Email),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("セッションIDが指定されていません")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("ログアウト", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションIDから現在のユーザーを取得する。
// 期限切れセッションはリポジトリ側で除外されるため、ここでは存在確認のみ行う。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("セッションIDが指定されていません")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの検索に失敗しました: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("セッションが存在しないか期限切れです")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("ユーザーが見つかりません")
	}

	return user, nil
}

// issueSession はセッションを作成して永続化する。
func (s *Service) issueSession(ctx context.Context, userID string) (*model.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &model.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// newSessionToken は256ビットのランダムなセッションIDを生成する。
func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("セッションIDの生成に失敗しました: %w", err)
	}
	return hex.EncodeToString(b), nil
}
