// Package source は記事の掲載元ブログの解決機能を提供する。
// 静的レジストリによる表示名・favicon・代替サムネイルの解決と、
// 未登録ホスト向けのパターンルールを含む。
package source

import "sort"

// ResolvedSource は掲載元の表示情報を表す。
type ResolvedSource struct {
	Name              string
	Favicon           string
	FallbackThumbnail string
}

// registry は既知の掲載元のレジストリ。
// キーはホスト名、またはマルチテナント型ブログの場合は「ホスト名/先頭パスセグメント」。
var registry = map[string]ResolvedSource{
	"toss.tech": {
		Name:    "토스",
		Favicon: "https://static.toss.im/tds/favicon/favicon-16x16.png",
	},
	"tech.kakaopay.com": {
		Name:    "카카오페이",
		Favicon: "https://tech.kakaopay.com/favicon.ico",
	},
	"engineering.ab180.co": {
		Name:    "AB180",
		Favicon: "https://oopy.lazyrockets.com/api/rest/cdn/image/7bbc75b5-1cdf-4b59-aec4-af3e335b3aad.png?d=16",
	},
	"thefarmersfront.github.io": {
		Name:    "컬리",
		Favicon: "https://www.kurly.com/favicon.ico",
	},
	"tech.devsisters.com": {
		Name:    "데브시스터스",
		Favicon: "https://tech.devsisters.com/favicon-32x32.png",
	},
	"tech.socarcorp.kr": {
		Name:    "쏘카",
		Favicon: "https://tech.socarcorp.kr/assets/icon/favicon.ico",
	},
	"hyperconnect.github.io": {
		Name:    "하이퍼커넥트",
		Favicon: "https://hyperconnect.github.io/assets/favicon.svg",
	},
	"tech.kakao.com": {
		Name:    "카카오",
		Favicon: "https://tech.kakao.com/favicon.ico",
	},
	"d2.naver.com": {
		Name:              "네이버 D2",
		Favicon:           "https://d2.naver.com/favicon.ico",
		FallbackThumbnail: "https://d2.naver.com/static/img/app/d2_logo_renewal.png",
	},
	"techblog.lycorp.co.jp": {
		Name:    "라인",
		Favicon: "https://techblog.lycorp.co.jp/favicon.ico",
	},
	"tech.inflab.com": {
		Name:    "인프랩",
		Favicon: "https://tech.inflab.com/favicon-32x32.png",
	},
	"blog.banksalad.com": {
		Name:    "뱅크샐러드",
		Favicon: "https://blog.banksalad.com/favicon-32x32.png",
	},
	"danawalab.github.io": {
		Name:    "다나와",
		Favicon: "https://img.danawa.com/new/danawa_main/v1/img/danawa_favicon.ico",
	},
	"medium.com/musinsa-tech": {
		Name:    "무신사",
		Favicon: "https://miro.medium.com/v2/1*Qs-0adxK8doDYyzZXMXkmg.png",
	},
	"medium.com/miridih": {
		Name:    "미리디",
		Favicon: "https://miro.medium.com/v2/1*uNdurJkcAe2-UoseF_dxrQ.png",
	},
	"medium.com/daangn": {
		Name:    "당근",
		Favicon: "https://miro.medium.com/v2/resize:fill:76:76/1*Bm8_nGjfNiKV0PASwiPELg.png",
	},
}

// RegistryEntry はレジストリの1エントリ（キー付き）。
// 検索オートコンプリートのAPIレスポンスに使用する。
type RegistryEntry struct {
	Key    string
	Source ResolvedSource
}

// IsRegisteredKey は指定キーがレジストリに登録済みかどうかを返す。
// 検索パーサーが「会社名キーの直接入力」を判定する際に使用する。
func IsRegisteredKey(key string) bool {
	_, ok := registry[key]
	return ok
}

// RegistryEntries は全レジストリエントリをキーの辞書順で返す。
func RegistryEntries() []RegistryEntry {
	entries := make([]RegistryEntry, 0, len(registry))
	for key, src := range registry {
		entries = append(entries, RegistryEntry{Key: key, Source: src})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}
