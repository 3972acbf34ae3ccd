package existing

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted 表示调用方放弃等待（被同一 owner 的新请求取代、主动取消或超时）。
// 共享的计算本身不受影响，结果仍会写入缓存供其他等待者使用。
var ErrAborted = errors.New("request aborted")

// ErrEmptyURL 表示请求没有携带可检查的 URL。
var ErrEmptyURL = errors.New("empty url")

// MatchType 标记候选书签是通过哪种方式匹配到的。
type MatchType string

const (
	MatchURL   MatchType = "url"
	MatchTitle MatchType = "title"
)

// 合并排序时 priority 越小越靠前。
const (
	PriorityURL   = 1
	PriorityTitle = 2
)

// LookupRequest 是一次"该页面是否已收藏"的查询。
// 取消信号由调用方的 context 携带。
type LookupRequest struct {
	URL     string
	Title   string
	OwnerID string // 通常是浏览器 tab id；为空时不参与 owner 取代逻辑
}

// CandidateMatch 是远端的一条可能匹配的书签记录。
type CandidateMatch struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags"`
	Folders    []int64   `json:"folders"`
	Similarity *float64  `json:"similarity,omitempty"` // URL 匹配没有相似度
	MatchType  MatchType `json:"matchType"`
	Priority   int       `json:"priority"`
}

func (m CandidateMatch) similarity() float64 {
	if m.Similarity == nil {
		return 0
	}
	return *m.Similarity
}

// Resolution 是一次查询的最终结论。
//
// 为兼容旧客户端，Matches[0] 的字段会通过内嵌指针平铺到 JSON 顶层。
type Resolution struct {
	OK      bool             `json:"ok"`
	Found   bool             `json:"found"`
	Matches []CandidateMatch `json:"matches"`
	Count   int              `json:"count"`

	*CandidateMatch

	variant string // 算出该结果时影响结果的配置，见 Settings.variant
}

// NewResolution 由排好序的匹配列表构造结果，保证 Found == (Count > 0)、Count == len(Matches)。
func NewResolution(matches []CandidateMatch) Resolution {
	if matches == nil {
		matches = []CandidateMatch{}
	}
	res := Resolution{
		OK:      true,
		Found:   len(matches) > 0,
		Matches: matches,
		Count:   len(matches),
	}
	if len(matches) > 0 {
		first := matches[0]
		res.CandidateMatch = &first
	}
	return res
}

// NotFound 是"确认不存在"的结果。
func NotFound() Resolution {
	return NewResolution(nil)
}

// Unavailable 是网络失败时的结果：调用方应当把它等同于"不存在"处理。
func Unavailable() Resolution {
	res := NewResolution(nil)
	res.OK = false
	return res
}

// Settings 是每次查询开始时读取一次的配置快照，之后向下传递，不在计算中途重新读取。
type Settings struct {
	EnableExistingCheck             bool
	FuzzyURLMatch                   bool
	CacheEnabled                    bool
	CacheTTLSeconds                 int
	TitleSimilarityEnabled          bool
	TitleCheckLimit                 int
	TitleSimilarityThresholdPercent int
}

const (
	DefaultCacheTTLSeconds  = 300
	DefaultTitleCheckLimit  = 20
	DefaultThresholdPercent = 75
)

func DefaultSettings() Settings {
	return Settings{
		EnableExistingCheck:             true,
		FuzzyURLMatch:                   true,
		CacheEnabled:                    true,
		CacheTTLSeconds:                 DefaultCacheTTLSeconds,
		TitleSimilarityEnabled:          true,
		TitleCheckLimit:                 DefaultTitleCheckLimit,
		TitleSimilarityThresholdPercent: DefaultThresholdPercent,
	}
}

// Threshold 把百分比阈值换算成 0~1；越界或未设置时回退到 0.75。
func (s Settings) Threshold() float64 {
	p := s.TitleSimilarityThresholdPercent
	if p <= 0 || p > 100 {
		p = DefaultThresholdPercent
	}
	return float64(p) / 100
}

// variant 描述会改变查询结果的配置；缓存命中要求 variant 相同。
func (s Settings) variant() string {
	if !s.TitleSimilarityEnabled {
		return "url"
	}
	return fmt.Sprintf("title:%d:%g", s.titleLimit(), s.Threshold())
}

func (s Settings) titleLimit() int {
	if s.TitleCheckLimit <= 0 {
		return DefaultTitleCheckLimit
	}
	return s.TitleCheckLimit
}

// SettingsProvider 提供查询配置（例如来自环境变量或远端用户设置）。
type SettingsProvider interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings 是固定不变的配置。
type StaticSettings Settings

func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}
