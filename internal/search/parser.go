// Package search は検索文字列のパース機能を提供する。
//
// ユーザーが入力する検索文字列は3つの形式を取る:
//   - 自由テキスト（「쿠버네티스」）
//   - 末尾に括弧付きドメインを持つ形式（「쿠버네티스 (toss.tech)」）。
//     オートコンプリートの選択結果がこの形式にエンコードされる
//   - 登録済みソースキーの直接入力（「toss.tech」）
package search

import "strings"

// Query は構造化済みの検索条件を表す。
type Query struct {
	FreeText     string // 題名・要約・カテゴリに対する自由テキスト条件
	SourceDomain string // source_urlに対する部分一致条件
}

// IsEmpty は検索条件が空かどうかを返す。
func (q Query) IsEmpty() bool {
	return q.FreeText == "" && q.SourceDomain == ""
}

// RegistryKeyChecker は文字列が登録済みソースキーかどうかを判定する関数。
// source.IsRegisteredKeyを注入する。
type RegistryKeyChecker func(key string) bool

// Parser は検索文字列をQueryに変換する。
type Parser struct {
	isRegisteredKey RegistryKeyChecker
}

// NewParser はParserを生成する。
func NewParser(isRegisteredKey RegistryKeyChecker) *Parser {
	return &Parser{isRegisteredKey: isRegisteredKey}
}

// Parse は検索文字列を構造化する。ルールは先頭から順に適用される:
//  1. 末尾が「... (X)」形式ならXをSourceDomainとし、残りをFreeTextとする
//  2. 全体が登録済みソースキーに完全一致するならSourceDomainのみ設定する
//  3. 上記以外は全体をFreeTextとする
func (p *Parser) Parse(raw string) Query {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Query{}
	}

	// ルール1: 末尾の括弧付きサフィックス
	if strings.HasSuffix(trimmed, ")") {
		if open := strings.LastIndex(trimmed, "("); open >= 0 {
			domain := strings.TrimSpace(trimmed[open+1 : len(trimmed)-1])
			freeText := strings.TrimSpace(trimmed[:open])
			if domain != "" {
				return Query{FreeText: freeText, SourceDomain: domain}
			}
		}
	}

	// ルール2: 登録済みソースキーの直接入力
	if p.isRegisteredKey != nil && p.isRegisteredKey(trimmed) {
		return Query{SourceDomain: trimmed}
	}

	// ルール3: 自由テキスト
	return Query{FreeText: trimmed}
}
