package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/socialdev-club/soticle/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事フィード
	FeedService   FeedServiceInterface
	ArticleFinder ArticleFinder
	LikeService   LikeServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging
//	  → (Optional)SessionMiddleware → RateLimitMiddleware
//
// フィード閲覧系エンドポイントは匿名アクセス可能なためOptionalSessionMiddlewareを使用し、
// いいね切り替えと退会は必須セッション + 専用レート制限の下に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	articleHandler := NewArticleHandler(deps.FeedService, deps.ArticleFinder, deps.LikeService)
	sourceHandler := NewSourceHandler()
	userHandler := NewUserHandler(deps.UserService)

	// ヘルスチェック（ミドルウェアなし）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 公開ルート ---
	// ミドルウェアスタック: OptionalSession → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 記事フィード
		r.Route("/api/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", articleHandler.GetArticle)
				r.Get("/likes", articleHandler.GetLikeState)
			})
		})

		// 掲載元レジストリ
		r.Get("/api/sources", sourceHandler.ListSources)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))

		// PUT /api/articles/{id}/like - いいね切り替え（専用レート制限）
		r.With(deps.RateLimiter.LikeToggleMiddleware()).
			Put("/api/articles/{id}/like", articleHandler.ToggleLike)

		// ユーザー管理
		r.With(deps.RateLimiter.GeneralMiddleware()).
			Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
