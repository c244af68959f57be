// Package session はプロセス全体で共有する現在ユーザーの保持と通知を提供する。
//
// 認証フローが書き込み、フィードエンジンといいねストアが読み取る。
// 読み手側コンポーネントがリスナーを個別に複製する代わりに、
// ひとつのプロバイダへの参照を共有する。
package session

import "sync"

// Listener はサインイン/サインアウトの通知を受け取る関数。
// 引数はサインイン後のユーザーID、サインアウト時は空文字列。
type Listener func(userID string)

// Provider は現在の認証ユーザーIDの保持者。
type Provider struct {
	mu        sync.RWMutex
	userID    string
	listeners map[int]Listener
	nextID    int
}

// NewProvider は未認証状態のProviderを生成する。
func NewProvider() *Provider {
	return &Provider{listeners: make(map[int]Listener)}
}

// CurrentUserID は現在の認証ユーザーIDを返す。未認証の場合は空文字列。
func (p *Provider) CurrentUserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

// SetCurrentUser は現在ユーザーを差し替え、全リスナーに通知する。
// サインアウトは空文字列で表す。値が変わらない場合は通知しない。
func (p *Provider) SetCurrentUser(userID string) {
	p.mu.Lock()
	if p.userID == userID {
		p.mu.Unlock()
		return
	}
	p.userID = userID
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	// リスナー呼び出しはロック外で行う
	for _, l := range listeners {
		l(userID)
	}
}

// Subscribe はリスナーを登録し、解除用の関数を返す。
func (p *Provider) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}
