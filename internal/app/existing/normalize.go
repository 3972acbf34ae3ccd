package existing

import (
	"net/url"
	"strings"
)

// NormalizeKey 把 URL 规整成模糊匹配用的缓存/合并 key：
// 去掉 scheme、fragment、开头的 "www." 和 path 末尾的一个 "/"，host 转小写，path 和 query 保持原样。
//
// 无法解析（或没有 host）的输入原样返回去掉首尾空白后的字符串，不会报错。
func NormalizeKey(raw string) string {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	var b strings.Builder
	b.WriteString(host)
	b.WriteString(strings.TrimSuffix(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// lookupKey 返回本次查询使用的 key，以及发给远端的 URL。
//
// 模糊匹配时远端 URL 只由 key 决定，同一个 key 的各种写法发出完全相同的请求。
// 关闭模糊匹配时两者都是 trim 后的原串。
func lookupKey(raw string, fuzzy bool) (key, query string) {
	if !fuzzy {
		s := strings.TrimSpace(raw)
		return s, s
	}
	key = NormalizeKey(raw)
	return key, queryURL(key)
}

// queryURL 把 key 还原成 https://<key>；还原不出 host 的 key 原样发送。
func queryURL(key string) string {
	u, err := url.Parse("https://" + key)
	if err != nil || u.Host == "" || u.User != nil {
		return key
	}
	return "https://" + key
}
