package model

import "time"

// Session はユーザーのログインセッションを表す。
// IDはCookieに載せるトークンそのもので、ExpiresAtを過ぎたものは無効。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
