package existing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bmcheck.local/internal/app/existing/cache"
	"bmcheck.local/internal/app/existing/remote"
	"bmcheck.local/internal/app/existing/stats"
	"bmcheck.local/internal/platform/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bmcheck.local/internal/app/existing")

// Remote 是 Service 依赖的远端查询能力，*remote.Client 满足它。
type Remote interface {
	LookupByURL(ctx context.Context, rawURL string) (remote.URLResult, error)
	LookupTitleCandidates(ctx context.Context, limit int) ([]remote.Record, error)
}

// Service 判断一个页面是否已经在远端收藏过。
//
// 缓存、进行中的计算和 owner 登记都是 Service 级别的单例，生命周期与进程相同。
type Service struct {
	settings  SettingsProvider
	remote    Remote
	cache     *cache.TTLCache[Resolution]
	coalescer *Coalescer
	owners    *OwnerRegistry
	scorer    Scorer
	collector stats.Collector
}

type Option func(*Service)

// WithScorer 替换标题相似度算法。
func WithScorer(s Scorer) Option {
	return func(svc *Service) { svc.scorer = s }
}

func WithCollector(c stats.Collector) Option {
	return func(svc *Service) { svc.collector = c }
}

func WithOwnerRegistry(r *OwnerRegistry) Option {
	return func(svc *Service) { svc.owners = r }
}

func NewService(settings SettingsProvider, r Remote, c *cache.TTLCache[Resolution], opts ...Option) *Service {
	svc := &Service{
		settings:  settings,
		remote:    r,
		cache:     c,
		coalescer: NewCoalescer(),
		owners:    NewOwnerRegistry(DefaultStaleAfter),
		scorer:    Similarity,
		collector: stats.NopCollector{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Check 解析一次查询。
//
// 返回的 error 只有 ErrEmptyURL 和 ErrAborted 两种；网络失败以 Resolution{OK:false} 返回。
// 无论哪种失败，调用方都应当按"不存在"继续收藏流程。
func (s *Service) Check(ctx context.Context, req LookupRequest) (res Resolution, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "existing.Check")
	defer span.End()

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return Unavailable(), ErrEmptyURL
	}

	set, serr := s.settings.Settings(ctx)
	if serr != nil {
		slog.Warn("load lookup settings failed, using defaults", "err", serr)
		set = DefaultSettings()
	}

	key, query := lookupKey(rawURL, set.FuzzyURLMatch)
	span.SetAttributes(attribute.String("lookup.key", key), attribute.String("lookup.owner", req.OwnerID))

	source := "remote"
	defer func() {
		outcome := outcomeOf(res, err, set)
		metrics.LookupsTotal.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("lookup.outcome", outcome), attribute.String("lookup.source", source))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		s.collector.Collect(stats.LookupEvent{
			Key:        key,
			OwnerID:    req.OwnerID,
			Outcome:    outcome,
			Source:     source,
			Count:      res.Count,
			DurationMS: time.Since(start).Milliseconds(),
			At:         start,
		})
	}()

	if !set.EnableExistingCheck {
		source = "disabled"
		return NotFound(), nil
	}

	waitCtx := ctx
	if req.OwnerID != "" {
		var tok Token
		waitCtx, tok = s.owners.Begin(ctx, req.OwnerID)
		defer s.owners.Finish(req.OwnerID, tok)
	}

	if set.CacheEnabled {
		// 用不同配置算出的结果不能直接复用
		if cached, ok := s.cache.Get(key); ok && cached.variant == set.variant() {
			source = "cache"
			return cached, nil
		}
	}

	if waitCtx.Err() != nil {
		return Unavailable(), ErrAborted
	}

	res, shared, err := s.coalescer.Resolve(waitCtx, key, func(cctx context.Context) (Resolution, error) {
		return s.compute(cctx, key, query, req.Title, set)
	})
	if shared {
		source = "shared"
	}
	if err != nil {
		if errors.Is(err, ErrAborted) {
			slog.Debug("lookup aborted", "key", key, "owner", req.OwnerID, "cause", context.Cause(waitCtx))
			return Unavailable(), ErrAborted
		}
		slog.Error("lookup failed", "key", key, "err", err)
		return Unavailable(), nil
	}
	return res, nil
}

// compute 是一个 key 的远端解析，由 Coalescer 保证同一 key 同时只跑一个。
func (s *Service) compute(ctx context.Context, key, query, title string, set Settings) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "existing.compute")
	defer span.End()

	cacheable := true

	byURL, err := s.remote.LookupByURL(ctx, query)
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrAborted):
		return Resolution{}, ErrAborted
	case errors.Is(err, remote.ErrServerError):
		// 按"没有找到"处理，但不缓存，下次重新查询
		slog.Warn("remote lookup by url failed", "key", key, "err", err)
		cacheable = false
	default:
		slog.Error("remote lookup by url failed", "key", key, "err", err)
		return Unavailable(), nil
	}

	urlMatches := fromRecords(byURL.Records, MatchURL)
	matches := Merge(urlMatches, nil)

	if len(urlMatches) == 0 && set.TitleSimilarityEnabled && strings.TrimSpace(title) != "" {
		records, err := s.remote.LookupTitleCandidates(ctx, set.titleLimit())
		switch {
		case err == nil:
			titleMatches := Matcher{Threshold: set.Threshold(), Scorer: s.scorer}.Score(title, records)
			matches = Merge(urlMatches, titleMatches)
		case errors.Is(err, remote.ErrAborted):
			return Resolution{}, ErrAborted
		case errors.Is(err, remote.ErrServerError):
			slog.Warn("remote candidate fetch failed", "key", key, "err", err)
			cacheable = false
		default:
			slog.Error("remote candidate fetch failed", "key", key, "err", err)
			return Unavailable(), nil
		}
	}

	res := NewResolution(matches)
	res.variant = set.variant()
	span.SetAttributes(attribute.Int("lookup.count", res.Count))
	if set.CacheEnabled && cacheable {
		s.cache.Put(key, res, set.CacheTTLSeconds)
	}
	return res, nil
}

// Invalidate 删除 URL 对应的缓存结果（例如刚刚创建了书签）。
// 模糊 key 和精确 key 都会删除，不依赖当时的配置。
func (s *Service) Invalidate(rawURL string) {
	s.cache.Delete(NormalizeKey(rawURL))
	s.cache.Delete(strings.TrimSpace(rawURL))
}

// CancelOwner 取消 owner 正在等待的查询，返回是否确实取消了一个请求。
func (s *Service) CancelOwner(ownerID string) bool {
	return s.owners.Cancel(ownerID)
}

func outcomeOf(res Resolution, err error, set Settings) string {
	switch {
	case errors.Is(err, ErrAborted):
		return "aborted"
	case err != nil || !res.OK:
		return "unavailable"
	case !set.EnableExistingCheck:
		return "disabled"
	case res.Found:
		return "found"
	default:
		return "not_found"
	}
}
