// Package model はドメインモデルを定義する。
package model

// CategoryAll は「全カテゴリ」を表すセンチネル値。
// 選択カテゴリ集合にCategoryAllのみが含まれる状態がフィルタなしを意味する。
const CategoryAll = "전체"

// Categories は記事カテゴリの閉じた集合。表示順を保持する。
var Categories = []string{
	CategoryAll,
	"커리어",
	"프론트엔드",
	"백엔드",
	"SRE",
	"데이터엔지니어링",
	"DevOps",
	"AI",
	"SW엔지니어링",
	"개발팁",
	"생산성",
	"QA",
	"PM/기획",
	"마케팅",
	"디자인",
	"HR",
}

// categorySet はカテゴリ名の検証用セット。
var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// IsValidCategory は指定された名前が既知のカテゴリかどうかを返す。
func IsValidCategory(name string) bool {
	return categorySet[name]
}
