package existing

import (
	"cmp"
	"slices"
)

// Merge 合并 URL 匹配和标题匹配的结果。
//
// 同一条记录（按 ID）只出现一次，两边都命中时记为 URL 匹配。
// URL 匹配（priority 1）总是排在标题匹配（priority 2）之前；
// 同一 priority 内按相似度降序（没有相似度按 0 处理），排序是稳定的。
func Merge(urlMatches, titleMatches []CandidateMatch) []CandidateMatch {
	out := make([]CandidateMatch, 0, len(urlMatches)+len(titleMatches))
	seen := make(map[int64]struct{}, cap(out))

	for _, m := range urlMatches {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.MatchType = MatchURL
		m.Priority = PriorityURL
		out = append(out, m)
	}
	for _, m := range titleMatches {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.MatchType = MatchTitle
		m.Priority = PriorityTitle
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b CandidateMatch) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.similarity(), a.similarity())
	})
	return out
}
