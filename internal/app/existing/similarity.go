package existing

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"bmcheck.local/internal/app/existing/remote"
	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Scorer 计算两个标题的相似度，返回 [0,1]，1 表示完全相同。
type Scorer func(a, b string) float64

// Similarity 是默认的标题相似度：编辑距离比例和词集合 Dice 系数取较大值。
// 两个输入先做 NFKC、大小写折叠，并把标点/空白统一成单个空格。
func Similarity(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	edit := 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)

	return max(edit, diceTokens(na, nb))
}

func normalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.Join(fields, " ")
}

// diceTokens = 2|A∩B| / (|A|+|B|)，A、B 为去重后的词集合。
func diceTokens(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(as)+len(bs))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}

// Matcher 按标题相似度筛选候选书签。
type Matcher struct {
	Threshold float64 // 闭区间：similarity >= Threshold 的保留
	Scorer    Scorer  // 为空时使用 Similarity
}

// Score 给每条候选记录打分，丢弃低于阈值的，按相似度降序返回（相同分数保持原顺序）。
func (m Matcher) Score(title string, records []remote.Record) []CandidateMatch {
	score := m.Scorer
	if score == nil {
		score = Similarity
	}

	out := make([]CandidateMatch, 0, len(records))
	for _, rec := range records {
		sim := score(title, rec.Title)
		if sim < m.Threshold {
			continue
		}
		c := fromRecord(rec, MatchTitle)
		c.Similarity = &sim
		out = append(out, c)
	}

	slices.SortStableFunc(out, func(a, b CandidateMatch) int {
		switch {
		case a.similarity() > b.similarity():
			return -1
		case a.similarity() < b.similarity():
			return 1
		}
		return 0
	})
	return out
}

func fromRecord(rec remote.Record, mt MatchType) CandidateMatch {
	prio := PriorityURL
	if mt == MatchTitle {
		prio = PriorityTitle
	}
	return CandidateMatch{
		ID:        rec.ID,
		URL:       rec.URL,
		Title:     rec.Title,
		Tags:      rec.Tags,
		Folders:   rec.Folders,
		MatchType: mt,
		Priority:  prio,
	}
}

func fromRecords(recs []remote.Record, mt MatchType) []CandidateMatch {
	out := make([]CandidateMatch, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec, mt))
	}
	return out
}
