package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事HTMLのサニタイズを定義する。
// フィード由来のHTMLは信頼できないため、保存前に必ずここを通す。
type ContentSanitizerService interface {
	// Sanitize は許可リストベースでHTMLを安全化する。
	// 許可タグはp, br, a, ul, ol, li, blockquote, pre, code, strong, em, img。
	// script, iframe, styleとon*イベント属性は除去される。
	// imgのsrcはhttpsのみ、aにはtarget="_blank"とrel="noopener noreferrer"が付く。
	// 冪等であり、空文字列には空文字列を返す。
	Sanitize(rawHTML string) string

	// PlainText はHTML断片から全タグを除去したプレーンテキストを返す。
	// 記事要約の検索マッチングに使う。
	PlainText(html string) string
}

// contentSanitizer はbluemondayのポリシーを保持する実装。
// ポリシーは構築後イミュータブルなので、Sanitizeは並行呼び出し可能。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer は記事表示用のサニタイズポリシーを構築する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: buildArticlePolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// buildArticlePolicy は記事本文向けの許可リストポリシーを構築する。
// 許可リストに載らないタグと属性は自動的に除去されるため、
// script等の禁止リストを別途持つ必要はない。
func buildArticlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// リンク: 相対URLは記事コンテキストで解決できないため不許可
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// 画像: 混在コンテンツ回避のためhttpsのみ。altはアクセシビリティ用に残す
	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return p
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// PlainText はHTML断片から全タグを除去したプレーンテキストを返す。
func (s *contentSanitizer) PlainText(html string) string {
	return strings.TrimSpace(s.strict.Sanitize(html))
}
