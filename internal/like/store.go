// Package like は記事ごとのいいね数・いいね状態のキャッシュと楽観的トグルを提供する。
package like

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialdev-club/soticle/internal/model"
)

const (
	// defaultFreshFor はキャッシュエントリを再取得なしで返す期間。
	defaultFreshFor = 2 * time.Minute
	// defaultEvictAfter は未アクセスのエントリをキャッシュから追い出すまでの期間。
	defaultEvictAfter = 5 * time.Minute
	// janitorInterval は追い出し処理の実行間隔。
	janitorInterval = time.Minute
)

// LikeQuerier はいいねストアが使用する永続化操作。
type LikeQuerier interface {
	CountByArticle(ctx context.Context, articleID string) (int, error)
	FindByArticleAndUser(ctx context.Context, articleID, userID string) (*model.Like, error)
	Create(ctx context.Context, like *model.Like) error
	Delete(ctx context.Context, articleID, userID string) error
}

// CurrentUserProvider は現在の認証ユーザーIDを提供する。
type CurrentUserProvider interface {
	CurrentUserID() string
}

// entry は1記事分のキャッシュエントリ。
// muは同一記事へのトグルを直列化する。異なる記事のトグルは完全に独立。
type entry struct {
	mu         sync.Mutex
	state      model.LikeState
	fetchedAt  time.Time
	lastAccess time.Time
}

// Store は記事IDをキーとするいいね状態のキャッシュ。
//
// Getは取得から2分間キャッシュを新鮮として扱い、5分間アクセスのない
// エントリはバックグラウンドで追い出される。取得は呼び出し時まで
// 遅延されるため、画面外のカード分の問い合わせは発生しない。
//
// Toggleは楽観的更新を行う: 表示値を即座に反転させてから書き込みを発行し、
// 失敗時はスナップショットへ巻き戻す。成否に関わらず最後にストアの値で
// 再検証するため、同一記事への連続トグルは最後の意図に収束する。
type Store struct {
	repo    LikeQuerier
	session CurrentUserProvider

	mu      sync.Mutex
	entries map[string]*entry

	freshFor   time.Duration
	evictAfter time.Duration
	now        func() time.Time
	stopCh     chan struct{}
}

// NewStore はStoreを生成し、追い出し用のバックグラウンドゴルーチンを開始する。
func NewStore(repo LikeQuerier, session CurrentUserProvider) *Store {
	s := &Store{
		repo:       repo,
		session:    session,
		entries:    make(map[string]*entry),
		freshFor:   defaultFreshFor,
		evictAfter: defaultEvictAfter,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	go s.janitorLoop()

	return s
}

// Stop は追い出しのバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	close(s.stopCh)
}

// Invalidate は全キャッシュエントリを破棄する。
// サインイン/サインアウトでisLikedの前提が変わった際に呼ぶ。
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Get は記事のいいね状態を返す。
// 2分以内に取得済みの値はそのまま返し、それ以外はストアから再取得する。
func (s *Store) Get(ctx context.Context, articleID string) (model.LikeState, error) {
	e := s.getOrCreateEntry(articleID)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	e.lastAccess = now
	if !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < s.freshFor {
		return e.state, nil
	}

	state, err := s.fetchState(ctx, articleID)
	if err != nil {
		return model.LikeState{}, err
	}
	e.state = state
	e.fetchedAt = now
	return state, nil
}

// Toggle は現在ユーザーのいいね状態を反転する。
// 未認証の場合はストアに触れずAUTH_REQUIREDを返す。
// 戻り値は確定後のいいね状態。
func (s *Store) Toggle(ctx context.Context, articleID string) (model.LikeState, error) {
	userID := s.session.CurrentUserID()
	if userID == "" {
		return model.LikeState{}, model.NewAuthRequiredError()
	}

	e := s.getOrCreateEntry(articleID)

	// 同一記事のトグルを直列化する。後発のトグルはここで待ち、
	// 先行の確定後に適用されるため最後の意図が最終状態になる。
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastAccess = s.now()

	// 未取得のままトグルされた場合は現在値を取得してから反転する
	if e.fetchedAt.IsZero() {
		state, err := s.fetchState(ctx, articleID)
		if err != nil {
			return model.LikeState{}, err
		}
		e.state = state
		e.fetchedAt = s.now()
	}

	// 1. スナップショット保存
	snapshot := e.state

	// 2. 楽観的更新: 表示値を即座に反転する
	if snapshot.IsLiked {
		e.state = model.LikeState{Count: snapshot.Count - 1, IsLiked: false}
	} else {
		e.state = model.LikeState{Count: snapshot.Count + 1, IsLiked: true}
	}
	if e.state.Count < 0 {
		e.state.Count = 0
	}

	// 3. 書き込み発行、失敗時はスナップショットへ巻き戻す
	var writeErr error
	if snapshot.IsLiked {
		writeErr = s.repo.Delete(ctx, articleID, userID)
	} else {
		writeErr = s.repo.Create(ctx, &model.Like{
			ID:        uuid.NewString(),
			ArticleID: articleID,
			UserID:    userID,
			CreatedAt: s.now(),
		})
	}
	if writeErr != nil {
		e.state = snapshot
	}

	// 成否に関わらずストアの値で再検証する
	if state, err := s.fetchState(ctx, articleID); err == nil {
		e.state = state
		e.fetchedAt = s.now()
	} else {
		// 再検証に失敗した場合は次のGetで再取得させる
		e.fetchedAt = time.Time{}
	}

	if writeErr != nil {
		return e.state, fmt.Errorf("いいねの切り替えに失敗しました: %w", writeErr)
	}
	return e.state, nil
}

// EntryCount は現在のキャッシュエントリ数を返す。テストおよびメトリクス用。
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fetchState はストアからいいね数と現在ユーザーのいいね有無を取得する。
func (s *Store) fetchState(ctx context.Context, articleID string) (model.LikeState, error) {
	count, err := s.repo.CountByArticle(ctx, articleID)
	if err != nil {
		return model.LikeState{}, fmt.Errorf("いいね数の取得に失敗しました: %w", err)
	}

	state := model.LikeState{Count: count}
	if userID := s.session.CurrentUserID(); userID != "" {
		liked, err := s.repo.FindByArticleAndUser(ctx, articleID, userID)
		if err != nil {
			return model.LikeState{}, fmt.Errorf("いいね状態の取得に失敗しました: %w", err)
		}
		state.IsLiked = liked != nil
	}
	return state, nil
}

// getOrCreateEntry は記事のキャッシュエントリを取得または作成する。
func (s *Store) getOrCreateEntry(articleID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[articleID]
	if !ok {
		e = &entry{lastAccess: s.now()}
		s.entries[articleID] = e
	}
	return e
}

// janitorLoop はバックグラウンドで未アクセスエントリを定期的に追い出す。
func (s *Store) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictStale()
		case <-s.stopCh:
			return
		}
	}
}

// evictStale は最終アクセスからevictAfterを超えたエントリを削除する。
func (s *Store) evictStale() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.evictAfter {
			delete(s.entries, id)
		}
	}
}
