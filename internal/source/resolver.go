package source

import (
	"net/url"
	"strings"
)

// Resolve は記事URLから掲載元の表示情報を解決する。
//
// 解決順序:
//  1. ホスト名がレジストリに完全一致
//  2. 「ホスト名/先頭パスセグメント」がレジストリに完全一致（medium.com等のマルチテナント型）
//  3. ホストのパターンルール（tistory.com / github.io / medium.com / dev.to / velog.io）で
//     「<プラットフォーム> > <識別子>」形式の名前を合成
//  4. 上記いずれにも該当しない場合は素のホスト名
//
// 不正なURLの場合は入力文字列をそのまま名前として返し、エラーは返さない。
func Resolve(rawURL string) ResolvedSource {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ResolvedSource{Name: rawURL}
	}

	hostname := u.Hostname()
	subdomain := strings.SplitN(hostname, ".", 2)[0]
	author := firstPathSegment(u)

	if src, ok := registry[hostname]; ok {
		return src
	}
	if author != "" {
		if src, ok := registry[hostname+"/"+author]; ok {
			return src
		}
	}

	switch {
	case strings.Contains(hostname, "tistory.com"):
		return ResolvedSource{Name: "tistory.com > " + subdomain}
	case strings.Contains(hostname, "github.io"):
		return ResolvedSource{Name: "github.io > " + subdomain}
	case strings.Contains(hostname, "medium.com"):
		return ResolvedSource{Name: "medium.com > " + author}
	case strings.Contains(hostname, "dev.to"):
		return ResolvedSource{Name: "dev.to > " + author}
	case strings.Contains(hostname, "velog.io"):
		return ResolvedSource{Name: "velog.io > " + author}
	default:
		return ResolvedSource{Name: hostname}
	}
}

// firstPathSegment はURLパスの先頭セグメントを返す。
// パスが空の場合は空文字列を返す。
func firstPathSegment(u *url.URL) string {
	trimmed := strings.TrimPrefix(u.Path, "/")
	if trimmed == "" {
		return ""
	}
	return strings.SplitN(trimmed, "/", 2)[0]
}
