package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/socialdev-club/soticle/internal/middleware"
	"github.com/socialdev-club/soticle/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw は退会処理としてユーザー本体とlikes、sessions、identitiesを
	// 一括削除する。articlesとsourcesは共有データとして残る。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Withdraw はログイン中のユーザー自身を退会させる。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("ユーザーが退会しました", slog.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したルーターを返す。
func SetupUserRoutes(service UserServiceInterface) http.Handler {
	h := NewUserHandler(service)

	r := chi.NewRouter()
	r.Delete("/api/users/me", h.Withdraw)
	return r
}
