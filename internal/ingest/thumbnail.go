package ingest

import (
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// extractThumbnailURL は記事のサムネイル画像URLを抽出する。
//
// 優先順位:
//  1. フィードのimage要素
//  2. 画像タイプのenclosure
//  3. 本文HTML中の先頭img要素
//
// いずれも見つからない場合は空文字列を返す。
func extractThumbnailURL(item *gofeed.Item) string {
	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}

	if url := firstImageInHTML(item.Content); url != "" {
		return url
	}
	return firstImageInHTML(item.Description)
}

// firstImageInHTML はHTML断片から先頭のimg要素のsrc属性を返す。
// httpスキームでないURL（data:等）は無視する。
func firstImageInHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.ToLower(string(key)) == "src" {
					src := string(val)
					if isHTTPURL(src) {
						return src
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

// isHTTPURL は文字列がhttp/httpsスキームのURLかどうかを返す。
func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
