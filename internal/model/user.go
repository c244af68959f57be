// Package model はドメインモデルを定義する。
package model

import "time"

// User はGoogleログインで登録されたサービス利用ユーザーを表す。
// パスワードは保持せず、認証は常に外部IdP経由で行う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はユーザーと外部IdPアカウントの紐付けを表す。
// 1ユーザーが複数のIdP（Google, GitHub等）を持てるよう
// usersテーブルからは分離している。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}
