package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrFeedNotFound はURLからフィードを検出できなかった場合に返される。
var ErrFeedNotFound = errors.New("no rss or atom feed found")

// discoverBodyLimit は自動検出で読み込むレスポンスの上限。
const discoverBodyLimit = 2 << 20

var (
	feedMediaTypes = map[string]bool{
		"application/rss+xml":   true,
		"application/atom+xml":  true,
		"application/feed+json": true,
	}
	xmlMediaTypes = map[string]bool{
		"text/xml":        true,
		"application/xml": true,
	}
)

// URLValidator は取得前のURL検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Discoverer はNEWS_FEEDSにサイトURLが指定された場合に、フィードURLを自動検出する。
type Discoverer struct {
	guard     URLValidator
	client    *http.Client
	userAgent string
}

// NewDiscoverer はDiscovererを生成する。guardがnilの場合はURL検証を行わない。
func NewDiscoverer(guard URLValidator, client *http.Client, userAgent string) *Discoverer {
	return &Discoverer{guard: guard, client: client, userAgent: userAgent}
}

// Resolve はrawURLがフィードであればそのまま返す。
// HTMLの場合はhead内の<link rel="alternate">から同一ホスト、Atom、出現順の優先度で1件選ぶ。
func (d *Discoverer) Resolve(ctx context.Context, rawURL string) (string, error) {
	if d.guard != nil {
		if err := d.guard.ValidateURL(rawURL); err != nil {
			return "", fmt.Errorf("feed url rejected: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid feed url: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml;q=0.9, text/html;q=0.8, */*;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, discoverBodyLimit))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	mediaType := mediaTypeOf(resp.Header.Get("Content-Type"))
	switch {
	case feedMediaTypes[mediaType], xmlMediaTypes[mediaType] && looksLikeFeed(body):
		return rawURL, nil
	case strings.Contains(mediaType, "html"):
		if feedURL := pickFeedLink(alternateLinks(body, rawURL), rawURL); feedURL != "" {
			return feedURL, nil
		}
	}
	return "", fmt.Errorf("%w at %s", ErrFeedNotFound, rawURL)
}

func mediaTypeOf(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// looksLikeFeed は汎用XMLのルート要素がRSSまたはAtomかを先頭4KBで判定する。
func looksLikeFeed(body []byte) bool {
	head := bytes.ToLower(body[:min(len(body), 4096)])
	if bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<rdf:rdf")) {
		return true
	}
	return bytes.Contains(head, []byte("<feed")) && bytes.Contains(head, []byte("http://www.w3.org/2005/atom"))
}

type feedLink struct {
	url  string
	atom bool
}

// alternateLinks はheadからフィードを指すalternateリンクを出現順に抽出する。
func alternateLinks(page []byte, base string) []feedLink {
	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "body" {
				return links
			}
			if string(name) != "link" || !hasAttr {
				continue
			}
			var rel, typ, href string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch string(key) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
			}
			if !strings.Contains(" "+rel+" ", " alternate ") || !feedMediaTypes[typ] {
				continue
			}
			if u := resolveHTTPURL(href, base); u != "" {
				links = append(links, feedLink{url: u, atom: typ == "application/atom+xml"})
			}
		}
	}
}

// pickFeedLink は同一ホスト、Atom、出現順の優先度で1件選ぶ。
func pickFeedLink(links []feedLink, pageURL string) string {
	pageHost := hostOf(pageURL)
	best, bestScore := "", -1
	for _, l := range links {
		score := 0
		if hostOf(l.url) == pageHost {
			score += 2
		}
		if l.atom {
			score++
		}
		if score > bestScore {
			best, bestScore = l.url, score
		}
	}
	return best
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
