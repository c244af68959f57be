// Package model はドメインモデルを定義する。
package model

import "time"

// Source は収集対象の技術ブログ（RSS/Atomフィード）を表す。
// 運営者が登録し、ワーカーが定期的にフェッチする。
type Source struct {
	ID                string
	Name              string
	SiteURL           string
	FeedURL           string // 空の場合はSiteURLから自動検出する
	Category          string
	FaviconData       []byte
	FaviconMime       string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はソースのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)
