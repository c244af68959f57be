package article

import (
	"sort"

	"github.com/socialdev-club/soticle/internal/model"
)

// tallyLikes は窓付きJOINの結果行からいいね数を集計する。
// JOIN結果は窓内のいいね1件につき記事1行を含むため、
// 同一IDの行数がその記事の窓内いいね数になる。
func tallyLikes(rows []model.Article) map[string]int {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ID]++
	}
	return counts
}

// unionCandidates はJOIN結果と無窓の候補集合をIDで統合する。
// 窓内にいいねを持たない記事はJOIN結果から構造的に脱落するため、
// 候補集合から補ってcount 0で含める。重複IDは1件に正規化される。
func unionCandidates(joined, candidates []model.Article) []model.Article {
	seen := make(map[string]bool, len(joined)+len(candidates))
	result := make([]model.Article, 0, len(candidates))
	for _, a := range joined {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		result = append(result, a)
	}
	for _, a := range candidates {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		result = append(result, a)
	}
	return result
}

// rankByPopularity は候補集合をいいね数の降順に並べる。
// 同数の場合は公開日時の降順、さらに同時刻の場合はID昇順で決定的に並ぶ。
func rankByPopularity(candidates []model.Article, counts map[string]int) []model.RankedArticle {
	ranked := make([]model.RankedArticle, len(candidates))
	for i, a := range candidates {
		ranked[i] = model.RankedArticle{Article: a, LikeCount: counts[a.ID]}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].LikeCount != ranked[j].LikeCount {
			return ranked[i].LikeCount > ranked[j].LikeCount
		}
		ti, tj := ranked[i].EffectivePublishedAt(), ranked[j].EffectivePublishedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// slicePage はランク済み列から [cursor, cursor+pageSize) のページを切り出す。
// hasMoreはページが満杯かつ列の末尾に達していない場合のみ真。
func slicePage(ranked []model.RankedArticle, cursor, pageSize int) (items []model.Article, hasMore bool) {
	total := len(ranked)
	if cursor >= total {
		return nil, false
	}
	end := cursor + pageSize
	if end > total {
		end = total
	}
	items = make([]model.Article, 0, end-cursor)
	for _, r := range ranked[cursor:end] {
		items = append(items, r.Article)
	}
	hasMore = len(items) == pageSize && end < total
	return items, hasMore
}
