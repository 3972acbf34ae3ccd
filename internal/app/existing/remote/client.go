package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bmcheck.local/internal/platform/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultCandidateLimit = 20

	maxBodyBytes = 4 << 20 // 远端响应体上限

	opByURL      = "by_url"
	opCandidates = "candidates"
)

// Record 是远端 API 返回的一条书签。
type Record struct {
	ID      int64    `json:"id"`
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Folders []int64  `json:"folders"`
}

// URLResult 是按 URL 精确查询的结果；Found 表示服务端至少有一条记录的 URL 与之相同。
type URLResult struct {
	Found   bool
	Records []Record
	Count   int
}

type envelope struct {
	Status string   `json:"status"`
	Data   []Record `json:"data"`
}

type Options struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration // 每次远端调用的上限，默认 10s

	// Transport 为空时使用 http.DefaultTransport；两种情况都会包一层 otelhttp。
	Transport http.RoundTripper
}

// Client 调用远端书签 REST API。
type Client struct {
	baseURL    string
	apiToken   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiToken: opts.APIToken,
		timeout:  timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// LookupByURL 查询与 rawURL 完全一致的书签。
//
// 服务端返回非成功状态时，结果为空且 error 匹配 ErrServerError；
// 调用方应当把它当作"没有找到"。
func (c *Client) LookupByURL(ctx context.Context, rawURL string) (URLResult, error) {
	q := url.Values{}
	q.Set("url", rawURL)
	q.Set("page", "-1")

	records, err := c.get(ctx, opByURL, q)
	if err != nil {
		return URLResult{}, err
	}
	return URLResult{
		Found:   len(records) > 0,
		Records: records,
		Count:   len(records),
	}, nil
}

// LookupTitleCandidates 拉取最近的 limit 条书签作为标题相似度的候选池；limit <= 0 时取 20。
func (c *Client) LookupTitleCandidates(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	q := url.Values{}
	q.Set("page", "0")
	q.Set("limit", strconv.Itoa(limit))
	return c.get(ctx, opCandidates, q)
}

func (c *Client) get(ctx context.Context, op string, q url.Values) (records []Record, err error) {
	start := time.Now()
	defer func() {
		metrics.RemoteRequestDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.RemoteRequestsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bookmark?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, classify(ctx, op, err)
	}
	if len(body) > maxBodyBytes {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: "response body too large"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: "decode: " + err.Error()}
	}
	if env.Status != "success" {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Status: env.Status}
	}
	if env.Data == nil {
		env.Data = []Record{}
	}
	return env.Data, nil
}

// classify 区分取消/超时和普通的传输失败。
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrAborted, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrServerError):
		return "server_error"
	default:
		return "network_error"
	}
}

// truncate 截到不超过 n 字节，不切断多字节字符。
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
