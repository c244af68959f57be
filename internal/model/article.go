// Package model はドメインモデルを定義する。
package model

import "time"

// Article は収集済みの技術ブログ記事を表す。
type Article struct {
	ID             string
	SourceID       string
	GuidOrID       string
	Title          string
	ContentSummary string // サニタイズ済みHTML
	ContentText    string // ContentSummaryのプレーンテキスト版（検索マッチング用）
	Category       string
	SourceURL      string
	ThumbnailURL   string
	PublishedAt    *time.Time
	ContentHash    string
	DailyViews     int
	WeeklyViews    int
	MonthlyViews   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivePublishedAt は並び替えに使用する公開日時を返す。
// published_atが未設定の記事はcreated_atで代替する。
func (a *Article) EffectivePublishedAt() time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.CreatedAt
}

// RankedArticle は人気順ランキングで集計済みのlike数を持つ記事。
type RankedArticle struct {
	Article
	LikeCount int
}

// ParsedArticle はフィードパーサーから取得した未保存の記事データを表す。
// ワーカーがソースフィードをパースした後、ArticleUpsertServiceに渡される。
type ParsedArticle struct {
	GuidOrID       string
	Title          string
	SourceURL      string
	ContentSummary string // 未サニタイズ
	ThumbnailURL   string
	PublishedAt    *time.Time
}
