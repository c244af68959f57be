package article

import (
	"testing"

	"github.com/socialdev-club/soticle/internal/query"
)

// exprContainsField は式ツリーに指定フィールドへの述語が含まれるかを返す。
func exprContainsField(e query.Expr, field string) bool {
	switch n := e.(type) {
	case nil:
		return false
	case query.And:
		for _, child := range n.Exprs {
			if exprContainsField(child, field) {
				return true
			}
		}
	case query.Or:
		for _, child := range n.Exprs {
			if exprContainsField(child, field) {
				return true
			}
		}
	case query.Eq:
		return n.Field == field
	case query.ILike:
		return n.Field == field
	case query.In:
		return n.Field == field
	}
	return false
}

// TestPlanner_Latest_AllServerSide は最新順で全述語が
// ストア側に置かれることを検証する。
func TestPlanner_Latest_AllServerSide(t *testing.T) {
	p := NewPlanner(testParser())
	q := categoryQuery(SortLatest, WindowAll, "AI")
	q.SearchTerm = "쿠버네티스 (toss.tech)"

	plan := p.Build(q, nil)

	if plan.ClientFilter != nil {
		t.Errorf("最新順でClientFilterが生成された: %+v", plan.ClientFilter)
	}
	if !exprContainsField(plan.ServerFilter, "category") {
		t.Error("カテゴリ述語がServerFilterにない")
	}
	if !exprContainsField(plan.ServerFilter, "title") {
		t.Error("自由テキスト述語がServerFilterにない")
	}
	if !exprContainsField(plan.ServerFilter, "source_url") {
		t.Error("ソースドメイン述語がServerFilterにない")
	}
}

// TestPlanner_Popular_NoSearch_CategoryServerSide は検索なしの人気順で
// カテゴリ述語がストア側に置かれることを検証する。
func TestPlanner_Popular_NoSearch_CategoryServerSide(t *testing.T) {
	p := NewPlanner(testParser())
	q := categoryQuery(SortPopular, WindowWeek, "AI")

	plan := p.Build(q, nil)

	if plan.SearchActive {
		t.Error("検索なしでSearchActiveがtrue")
	}
	if plan.ClientFilter != nil {
		t.Errorf("検索なしでClientFilterが生成された: %+v", plan.ClientFilter)
	}
	if !exprContainsField(plan.ServerFilter, "category") {
		t.Error("カテゴリ述語がServerFilterにない")
	}
}

// TestPlanner_Popular_WithSearch_DeferredClientSide は検索有効の人気順で
// 検索とカテゴリの両述語がメモリ内段へ先送りされることを検証する。
func TestPlanner_Popular_WithSearch_DeferredClientSide(t *testing.T) {
	p := NewPlanner(testParser())
	q := categoryQuery(SortPopular, WindowAll, "AI")
	q.SearchTerm = "쿠버네티스"

	plan := p.Build(q, nil)

	if !plan.SearchActive {
		t.Fatal("SearchActiveがfalse")
	}
	if plan.ServerFilter != nil {
		t.Errorf("検索有効の人気順でServerFilterが残っている: %+v", plan.ServerFilter)
	}
	if !exprContainsField(plan.ClientFilter, "category") {
		t.Error("カテゴリ述語がClientFilterにない")
	}
	if !exprContainsField(plan.ClientFilter, "title") {
		t.Error("検索述語がClientFilterにない")
	}
}

// TestPlanner_LikedIDsAlwaysServerSide はいいね済みID制約が
// 検索の有無に関わらずストア側に置かれることを検証する。
func TestPlanner_LikedIDsAlwaysServerSide(t *testing.T) {
	p := NewPlanner(testParser())
	likedIDs := []string{"a", "b"}

	q := categoryQuery(SortPopular, WindowAll, "AI")
	q.SearchTerm = "쿠버네티스"
	plan := p.Build(q, likedIDs)
	if !exprContainsField(plan.ServerFilter, "id") {
		t.Error("検索有効時にID制約がServerFilterにない")
	}

	q = categoryQuery(SortLatest, WindowAll)
	plan = p.Build(q, likedIDs)
	if !exprContainsField(plan.ServerFilter, "id") {
		t.Error("最新順でID制約がServerFilterにない")
	}
}

// TestPlanner_RegistryKeySearch は登録済みキーの直接入力が
// source_urlのみの述語になることを検証する。
func TestPlanner_RegistryKeySearch(t *testing.T) {
	p := NewPlanner(testParser())
	q := NewFeedQuery()
	q.SearchTerm = "toss.tech"

	plan := p.Build(q, nil)

	if !exprContainsField(plan.ServerFilter, "source_url") {
		t.Error("ソースドメイン述語がServerFilterにない")
	}
	if exprContainsField(plan.ServerFilter, "title") {
		t.Error("登録済みキー入力で自由テキスト述語が生成された")
	}
}
