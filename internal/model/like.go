// Package model はドメインモデルを定義する。
package model

import "time"

// Like はユーザーによる記事への「いいね」を表す。
// (article_id, user_id) の組はUNIQUE制約を持ち、レコードの存在がいいね済みを意味する。
// created_atは人気順ランキングの時間窓フィルタに使用される。
type Like struct {
	ID        string
	ArticleID string
	UserID    string
	CreatedAt time.Time
}

// LikeState は1記事に対するいいね数と現在ユーザーのいいね状態。
type LikeState struct {
	Count   int
	IsLiked bool
}
