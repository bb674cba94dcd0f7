package news

import (
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/skillnest/internal/model"
)

// ConvertItems はgofeedの記事をmodel.ParsedNewsItemに変換する。
// GUIDもリンクも持たない記事は同一性を判定できないため除外する。
func ConvertItems(items []*gofeed.Item) []model.ParsedNewsItem {
	parsed := make([]model.ParsedNewsItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedNewsItem{
			GUID:        strings.TrimSpace(item.GUID),
			Title:       strings.TrimSpace(item.Title),
			Description: item.Description,
			Content:     item.Content,
			Link:        strings.TrimSpace(item.Link),
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.Link == "" && (strings.HasPrefix(p.GUID, "http://") || strings.HasPrefix(p.GUID, "https://")) {
			p.Link = p.GUID
		}
		if p.GUID == "" {
			p.GUID = p.Link
		}
		if p.GUID == "" {
			continue
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		p.ImageURL = itemImage(item, p.Link)
		parsed = append(parsed, p)
	}

	return parsed
}

// itemImage は記事の画像URLを決める。
// 優先順位: item.Image > 画像のenclosure > content内の最初の<img> > description内の最初の<img>
func itemImage(item *gofeed.Item, link string) string {
	if item.Image != nil {
		if u := resolveHTTPURL(item.Image.URL, link); u != "" {
			return u
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			if u := resolveHTTPURL(enc.URL, link); u != "" {
				return u
			}
		}
	}
	if u := FirstImageURL(item.Content, link); u != "" {
		return u
	}
	return FirstImageURL(item.Description, link)
}
