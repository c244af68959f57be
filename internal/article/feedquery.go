// Package article はフィードの問い合わせ計画・ランキング・状態管理を提供する。
package article

import (
	"time"

	"github.com/socialdev-club/soticle/internal/model"
)

// Sort はフィードの並び順。
type Sort string

const (
	// SortLatest は公開日時の降順。
	SortLatest Sort = "latest"
	// SortPopular は時間窓内のいいね数の降順。
	SortPopular Sort = "popular"
)

// IsValidSort は既知の並び順かどうかを返す。
func IsValidSort(s Sort) bool {
	return s == SortLatest || s == SortPopular
}

// Window は人気順ランキングのいいね集計の時間窓。
type Window string

const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

// IsValidWindow は既知の時間窓かどうかを返す。
func IsValidWindow(w Window) bool {
	switch w {
	case WindowDay, WindowWeek, WindowMonth, WindowAll:
		return true
	}
	return false
}

// Start は時間窓の開始時刻を返す。WindowAllはエポックを返し、実質無制限になる。
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case WindowDay:
		return now.Add(-24 * time.Hour)
	case WindowWeek:
		return now.Add(-7 * 24 * time.Hour)
	case WindowMonth:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return time.Unix(0, 0).UTC()
	}
}

// CategorySet は選択中のカテゴリ集合。
// 不変条件: 集合は空にならず、CategoryAllを含むのはCategoryAll単独のときだけ。
type CategorySet struct {
	selected map[string]bool
}

// NewCategorySet は「전체」のみを選択した初期状態の集合を生成する。
func NewCategorySet() *CategorySet {
	return &CategorySet{selected: map[string]bool{model.CategoryAll: true}}
}

// NewCategorySetFrom は指定カテゴリを選択した集合を生成する。
// 未知のカテゴリは無視され、有効なカテゴリがひとつもない場合は「전체」になる。
func NewCategorySetFrom(names []string) *CategorySet {
	cs := NewCategorySet()
	for _, name := range names {
		if name == model.CategoryAll {
			continue
		}
		cs.Toggle(name)
	}
	return cs
}

// Toggle はカテゴリの選択状態を反転する。
// 「전체」の選択は他の全カテゴリを解除し、個別カテゴリの選択は「전체」を解除する。
// 最後の個別カテゴリを解除すると「전체」に戻る。未知のカテゴリは無視する。
func (cs *CategorySet) Toggle(name string) {
	if !model.IsValidCategory(name) {
		return
	}

	if name == model.CategoryAll {
		cs.selected = map[string]bool{model.CategoryAll: true}
		return
	}

	if cs.selected[name] {
		delete(cs.selected, name)
		if len(cs.selected) == 0 {
			cs.selected[model.CategoryAll] = true
		}
		return
	}

	delete(cs.selected, model.CategoryAll)
	cs.selected[name] = true
}

// IsAll はフィルタなし（「전체」のみ選択）かどうかを返す。
func (cs *CategorySet) IsAll() bool {
	return cs.selected[model.CategoryAll]
}

// Contains は指定カテゴリが選択中かどうかを返す。
func (cs *CategorySet) Contains(name string) bool {
	return cs.selected[name]
}

// Selected は選択中のカテゴリをmodel.Categoriesの表示順で返す。
func (cs *CategorySet) Selected() []string {
	result := make([]string, 0, len(cs.selected))
	for _, c := range model.Categories {
		if cs.selected[c] {
			result = append(result, c)
		}
	}
	return result
}

// Clone は集合の複製を返す。
func (cs *CategorySet) Clone() *CategorySet {
	selected := make(map[string]bool, len(cs.selected))
	for k, v := range cs.selected {
		selected[k] = v
	}
	return &CategorySet{selected: selected}
}

// FeedQuery はフィード取得を駆動する現在のフィルタ・並び・検索の選択状態。
type FeedQuery struct {
	Categories *CategorySet
	Sort       Sort
	Window     Window
	SearchTerm string
	LikedOnly  bool
}

// NewFeedQuery は既定値（全カテゴリ・最新順）のFeedQueryを生成する。
func NewFeedQuery() FeedQuery {
	return FeedQuery{
		Categories: NewCategorySet(),
		Sort:       SortLatest,
		Window:     WindowAll,
	}
}

// Clone はFeedQueryの複製を返す。
func (q FeedQuery) Clone() FeedQuery {
	clone := q
	if q.Categories != nil {
		clone.Categories = q.Categories.Clone()
	}
	return clone
}
