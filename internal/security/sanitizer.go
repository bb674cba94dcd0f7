// Package security はHTMLのサニタイズと外部URLへのリクエスト制限を提供する。
package security

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は信頼できないHTMLを安全な形に変換する。
// 実装はスレッドセーフで、同一入力に対して常に同一出力を返す。
type Sanitizer interface {
	Sanitize(raw string) string
}

type policySanitizer struct {
	policy *bluemonday.Policy
	post   func(string) string
}

func (s *policySanitizer) Sanitize(raw string) string {
	out := s.policy.Sanitize(raw)
	if s.post != nil {
		out = s.post(out)
	}
	return out
}

// languageClass はgoldmarkがフェンス付きコードブロックに付けるクラス名。
var languageClass = regexp.MustCompile(`^language-[A-Za-z0-9_+#-]+$`)

// NewMarkdownSanitizer はAI応答をMarkdownからHTMLに変換した結果を対象とするSanitizerを返す。
//
// 見出し、リスト、表、コードブロック、リンクを許可する。
// コードブロックのclassは language-xxx のみ通す。
// リンクはhttp/httpsの絶対URLに限り、target="_blank" と rel="noopener noreferrer" を付与する。
// 画像、script、style、イベント属性は除去する。
func NewMarkdownSanitizer() Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class").Matching(languageClass).OnElements("code")
	p.AllowAttrs("align").Matching(regexp.MustCompile(`^(left|center|right)$`)).OnElements("th", "td")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &policySanitizer{policy: p}
}

// NewPlainTextSanitizer はタグをすべて除去し、文字参照を戻したプレーンテキストを返すSanitizerを返す。
// maxRunesが正の場合、その文字数で切り詰めて末尾に"…"を付ける。
// ニュース記事の概要のようにJSONでテキストとして返す値に使う。
func NewPlainTextSanitizer(maxRunes int) Sanitizer {
	return &policySanitizer{
		policy: bluemonday.StrictPolicy(),
		post: func(s string) string {
			s = strings.Join(strings.Fields(html.UnescapeString(s)), " ")
			if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
				r := []rune(s)
				s = strings.TrimSpace(string(r[:maxRunes])) + "…"
			}
			return s
		},
	}
}
