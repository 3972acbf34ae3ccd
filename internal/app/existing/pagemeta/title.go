// Package pagemeta 从页面 HTML 中提取标题，作为标题相似度查询的输入。
package pagemeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// 只读取页面开头，<head> 通常在这个范围内。
const maxBodyBytes = 1 << 20

var ErrNotHTML = errors.New("not an html page")

// Fetcher 下载页面并提取标题。
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// FetchTitle 下载 pageURL 并返回其标题；页面没有标题时返回空字符串。
func (f *Fetcher) FetchTitle(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: http %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("fetch %s: %w (%s)", pageURL, ErrNotHTML, ct)
	}
	return ExtractTitle(io.LimitReader(resp.Body, maxBodyBytes))
}

// ExtractTitle 依次尝试 og:title、twitter:title 和 <title>。
func ExtractTitle(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, sel := range []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if t := collapse(content); t != "" {
				return t, nil
			}
		}
	}
	return collapse(doc.Find("title").First().Text()), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
