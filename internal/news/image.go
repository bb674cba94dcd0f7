package news

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FirstImageURL はHTML断片から最初の<img src>を探し、baseで絶対URLに解決して返す。
// http(s)以外のURLやdata URIは無視する。見つからない場合は空文字列を返す。
func FirstImageURL(fragment, base string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" {
					if u := resolveHTTPURL(string(val), base); u != "" {
						return u
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// resolveHTTPURL はrefをbase基準で解決し、http(s)の絶対URLのみ返す。
func resolveHTTPURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	return u.String()
}
