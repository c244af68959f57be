// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeArticleNotFound  = "ARTICLE_NOT_FOUND"
	ErrCodeInvalidCategory  = "INVALID_CATEGORY"
	ErrCodeInvalidSort      = "INVALID_SORT"
	ErrCodeInvalidWindow    = "INVALID_WINDOW"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeSSRFBlocked      = "SSRF_BLOCKED"
	ErrCodeFeedNotDetected  = "FEED_NOT_DETECTED"
	ErrCodeParseFailed      = "PARSE_FAILED"
)

// NewFetchFailedError はストア問い合わせ失敗エラーを生成する。
// 再試行可能なエラーとしてUIに表示される。
func NewFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  "아티클을 불러오는데 실패했습니다.",
		Category: "feed",
		Action:   "잠시 후 다시 시도해주세요.",
	}
}

// NewAuthRequiredError は未ログイン状態で認証必須の操作を行った場合のエラーを生成する。
// FETCH_FAILEDとは区別され、ログイン導線を表示する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "로그인이 필요합니다.",
		Category: "auth",
		Action:   "로그인 후 다시 시도해주세요.",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "feed",
		Action:   "記事IDを確認してください。",
	}
}

// NewInvalidCategoryError は未知のカテゴリ指定エラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "定義済みカテゴリのいずれかを指定してください。",
	}
}

// NewInvalidSortError は未知のソート指定エラーを生成する。
func NewInvalidSortError(sort string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSort,
		Message:  fmt.Sprintf("無効なソート指定です: %s", sort),
		Category: "validation",
		Action:   "latest または popular を指定してください。",
	}
}

// NewInvalidWindowError は未知の時間窓指定エラーを生成する。
func NewInvalidWindowError(window string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWindow,
		Message:  fmt.Sprintf("無効な時間窓指定です: %s", window),
		Category: "validation",
		Action:   "day、week、month、all のいずれかを指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを指定してください。",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "feed",
		Action:   "フィードURLを直接設定するか、サイトURLを確認してください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "フィードの解析に失敗しました。",
		Category: "feed",
		Action:   "有効なRSS/Atomフィードかどうか確認してください。",
	}
}
