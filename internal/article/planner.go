package article

import (
	"github.com/socialdev-club/soticle/internal/query"
	"github.com/socialdev-club/soticle/internal/search"
)

// Plan はひとつのFeedQueryから導出された問い合わせ計画。
// ストアで評価する述語とメモリ内で評価する述語に分割される。
// 分割規則は一貫している: 窓付きJOIN経路で表現できない述語は
// 一律にメモリ内フィルタ段へ先送りされる。
type Plan struct {
	// ServerFilter はストア側のWHERE句として評価される述語。
	ServerFilter query.Expr
	// ClientFilter は候補集合へのメモリ内フィルタとして評価される述語。
	// 人気順で検索語が有効なときのみ使用される。
	ClientFilter query.Expr
	// SearchActive は検索語が有効かどうか。
	SearchActive bool
}

// Planner はFeedQueryを問い合わせ計画に変換する。
type Planner struct {
	parser *search.Parser
}

// NewPlanner はPlannerを生成する。
func NewPlanner(parser *search.Parser) *Planner {
	return &Planner{parser: parser}
}

// Build はFeedQueryから問い合わせ計画を構築する。
// likedIDsが非nilの場合、いいね済み記事への制約がストア側の述語に追加される。
//
// 最新順: 全述語をストア側で評価できるためClientFilterは常にnil。
// 人気順: 検索語がない場合はカテゴリ述語をストア側で評価し、
// 検索語がある場合はカテゴリ述語ごとメモリ内評価に切り替える
// （検索述語は窓付きJOINの結果集合に対して評価する必要があるため、
// 同時に有効なカテゴリ述語もメモリ内段が正とする）。
func (p *Planner) Build(q FeedQuery, likedIDs []string) Plan {
	categoryExpr := buildCategoryExpr(q.Categories)
	searchExpr := p.buildSearchExpr(q.SearchTerm)

	plan := Plan{SearchActive: searchExpr != nil}

	var server []query.Expr
	if likedIDs != nil {
		server = append(server, query.In{Field: "id", Values: likedIDs})
	}

	if q.Sort == SortPopular && plan.SearchActive {
		var client []query.Expr
		if categoryExpr != nil {
			client = append(client, categoryExpr)
		}
		client = append(client, searchExpr)
		plan.ClientFilter = andAll(client)
	} else {
		if categoryExpr != nil {
			server = append(server, categoryExpr)
		}
		if searchExpr != nil {
			server = append(server, searchExpr)
		}
	}

	plan.ServerFilter = andAll(server)
	return plan
}

// buildCategoryExpr はカテゴリ集合をIN述語に変換する。
// 「전체」選択時はフィルタなしを意味するnilを返す。
func buildCategoryExpr(cs *CategorySet) query.Expr {
	if cs == nil || cs.IsAll() {
		return nil
	}
	return query.In{Field: "category", Values: cs.Selected()}
}

// buildSearchExpr は検索語を述語に変換する。空の検索語はnilを返す。
// 自由テキストはtitle/summary/category/source_urlへのOR部分一致、
// ソースドメインはsource_urlへの部分一致で、両者はANDで結合される。
func (p *Planner) buildSearchExpr(raw string) query.Expr {
	parsed := p.parser.Parse(raw)
	if parsed.IsEmpty() {
		return nil
	}

	var exprs []query.Expr
	if parsed.FreeText != "" {
		exprs = append(exprs, query.Or{Exprs: []query.Expr{
			query.ILike{Field: "title", Pattern: parsed.FreeText},
			query.ILike{Field: "summary", Pattern: parsed.FreeText},
			query.ILike{Field: "category", Pattern: parsed.FreeText},
			query.ILike{Field: "source_url", Pattern: parsed.FreeText},
		}})
	}
	if parsed.SourceDomain != "" {
		exprs = append(exprs, query.ILike{Field: "source_url", Pattern: parsed.SourceDomain})
	}
	return andAll(exprs)
}

// andAll は述語リストをAND結合する。空はnil、1件はそのまま返す。
func andAll(exprs []query.Expr) query.Expr {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		return query.And{Exprs: exprs}
	}
}
