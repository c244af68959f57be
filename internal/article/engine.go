package article

import (
	"context"
	"errors"
	"sync"

	"github.com/socialdev-club/soticle/internal/model"
)

// State はフィードエンジンの状態。
type State string

const (
	StateIdle           State = "idle"
	StateLoadingInitial State = "loading-initial"
	StateLoadingMore    State = "loading-more"
	StateError          State = "error"
	StateReady          State = "ready"
)

// CurrentUserProvider は現在の認証ユーザーIDを提供する。
// セッションプロバイダが所有し、エンジンは読み取りのみ行う。
type CurrentUserProvider interface {
	// CurrentUserID は認証済みユーザーのIDを返す。未認証の場合は空文字列。
	CurrentUserID() string
}

// Snapshot はエンジンの観測可能な状態のコピー。
// 呼び出し側はSnapshot経由でのみ状態を観測し、エラーが直接伝播することはない。
type Snapshot struct {
	State   State
	Items   []model.Article
	HasMore bool
	Err     *model.APIError
}

// Engine はフィードの取得・ランキング・無限スクロールを駆動する状態機械。
//
// FeedQueryのいずれかのフィールドが変わるとページ状態を全リセットして
// loading-initialに入り、世代カウンタを進める。進行中だったフェッチの
// 応答は世代不一致により破棄される（stale-response guard）。
// 同一世代内のフィードフェッチは常に高々1件に制限される。
type Engine struct {
	feed    *FeedService
	session CurrentUserProvider

	mu         sync.Mutex
	q          FeedQuery
	state      State
	items      []model.Article
	hasMore    bool
	err        *model.APIError
	generation uint64
	fetching   bool
	// likedIDsはlikedOnly有効時にクエリ世代ごとに1回取得されるいいね済みID集合
	likedIDs []string
}

// NewEngine は既定のFeedQuery（全カテゴリ・最新順）でidle状態のエンジンを生成する。
func NewEngine(feed *FeedService, session CurrentUserProvider) *Engine {
	return &Engine{
		feed:    feed,
		session: session,
		q:       NewFeedQuery(),
		state:   StateIdle,
	}
}

// Snapshot は現在の状態のコピーを返す。
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	items := make([]model.Article, len(e.items))
	copy(items, e.items)
	return Snapshot{State: e.state, Items: items, HasMore: e.hasMore, Err: e.err}
}

// Query は現在のFeedQueryのコピーを返す。
func (e *Engine) Query() FeedQuery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q.Clone()
}

// Start は初期クエリでの最初の取得を行う。
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	gen := e.beginNewQueryLocked(e.q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// ToggleCategory はカテゴリの選択状態を反転して再取得する。
func (e *Engine) ToggleCategory(ctx context.Context, name string) {
	e.mu.Lock()
	q := e.q.Clone()
	q.Categories.Toggle(name)
	gen := e.beginNewQueryLocked(q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// SetSort は並び順と時間窓を変更して再取得する。
func (e *Engine) SetSort(ctx context.Context, sort Sort, window Window) {
	e.mu.Lock()
	q := e.q.Clone()
	q.Sort = sort
	q.Window = window
	gen := e.beginNewQueryLocked(q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// SetSearchTerm は検索語を変更して再取得する。
func (e *Engine) SetSearchTerm(ctx context.Context, term string) {
	e.mu.Lock()
	q := e.q.Clone()
	q.SearchTerm = term
	gen := e.beginNewQueryLocked(q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// SetLikedOnly はいいね済みフィルタを変更して再取得する。
// 未認証でtrueにした場合はストアへの問い合わせを行わず
// AUTH_REQUIREDのエラー状態に遷移する。
func (e *Engine) SetLikedOnly(ctx context.Context, on bool) {
	e.mu.Lock()
	q := e.q.Clone()
	q.LikedOnly = on
	gen := e.beginNewQueryLocked(q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// Retry は同一クエリでloading-initialに再入する。
// エラー状態からの唯一の復帰手段で、自動リトライは行わない。
func (e *Engine) Retry(ctx context.Context) {
	e.mu.Lock()
	gen := e.beginNewQueryLocked(e.q)
	e.mu.Unlock()
	e.loadInitial(ctx, gen)
}

// LoadMore はスクロール末尾接近シグナルを処理する。
// ready状態かつhasMoreかつ他のフェッチが進行中でない場合のみ次ページを取得し、
// それ以外では何もしない。
func (e *Engine) LoadMore(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateReady || !e.hasMore || e.fetching {
		e.mu.Unlock()
		return
	}
	e.state = StateLoadingMore
	e.fetching = true
	gen := e.generation
	q := e.q.Clone()
	likedIDs := e.likedIDs
	cursor := len(e.items)
	e.mu.Unlock()

	page, err := e.feed.FetchPage(ctx, q, likedIDs, cursor)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		// 破棄: クエリ変更で世代が進んでいる
		return
	}
	e.fetching = false
	if err != nil {
		// loading-more失敗は直前の正常ページを保持したままエラーに遷移する
		e.state = StateError
		e.err = asAPIError(err)
		return
	}
	e.state = StateReady
	e.err = nil
	e.items = append(e.items, page.Items...)
	e.hasMore = page.HasMore
}

// beginNewQueryLocked はクエリを差し替えてページ状態をリセットし、
// 世代を進めてloading-initialに遷移する。進んだ世代番号を返す。
func (e *Engine) beginNewQueryLocked(q FeedQuery) uint64 {
	e.q = q
	e.items = nil
	e.hasMore = false
	e.err = nil
	e.likedIDs = nil
	e.generation++
	e.state = StateLoadingInitial
	e.fetching = true
	return e.generation
}

// loadInitial は世代genの初期ページを取得する。
// 完了時点で世代が進んでいた場合、結果は状態に反映されない。
func (e *Engine) loadInitial(ctx context.Context, gen uint64) {
	e.mu.Lock()
	q := e.q.Clone()
	e.mu.Unlock()

	var likedIDs []string
	if q.LikedOnly {
		userID := e.session.CurrentUserID()
		if userID == "" {
			e.settleInitialError(gen, model.NewAuthRequiredError())
			return
		}
		ids, err := e.feed.LikedArticleIDs(ctx, userID)
		if err != nil {
			e.settleInitialError(gen, asAPIError(err))
			return
		}
		likedIDs = ids
	}

	page, err := e.feed.FetchPage(ctx, q, likedIDs, 0)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.fetching = false
	if err != nil {
		// loading-initial失敗はページを空にしてエラーに遷移する
		e.state = StateError
		e.err = asAPIError(err)
		e.items = nil
		e.hasMore = false
		return
	}
	e.state = StateReady
	e.err = nil
	e.items = page.Items
	e.hasMore = page.HasMore
	e.likedIDs = likedIDs
}

// settleInitialError は初期取得のエラーを世代確認のうえ状態に反映する。
func (e *Engine) settleInitialError(gen uint64, apiErr *model.APIError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	e.fetching = false
	e.state = StateError
	e.err = apiErr
	e.items = nil
	e.hasMore = false
}

// asAPIError はエラーをAPIErrorに変換する。
// APIError以外のストアエラーは再試行可能なFETCH_FAILEDに正規化される。
func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewFetchFailedError()
}
