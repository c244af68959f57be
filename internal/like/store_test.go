package like

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/socialdev-club/soticle/internal/model"
)

// fakeSession はテスト用のセッションプロバイダ。
type fakeSession struct {
	userID string
}

func (f *fakeSession) CurrentUserID() string { return f.userID }

// fakeLikeRepo はメモリ上でいいねレコードを管理するテスト用リポジトリ。
// failCreate/failDeleteで書き込み失敗を注入できる。
type fakeLikeRepo struct {
	likes      map[string]map[string]bool // articleID -> userID -> liked
	failCreate bool
	failDelete bool
	countCalls int
}

func newFakeLikeRepo() *fakeLikeRepo {
	return &fakeLikeRepo{likes: make(map[string]map[string]bool)}
}

func (f *fakeLikeRepo) CountByArticle(_ context.Context, articleID string) (int, error) {
	f.countCalls++
	return len(f.likes[articleID]), nil
}

func (f *fakeLikeRepo) FindByArticleAndUser(_ context.Context, articleID, userID string) (*model.Like, error) {
	if f.likes[articleID][userID] {
		return &model.Like{ArticleID: articleID, UserID: userID}, nil
	}
	return nil, nil
}

func (f *fakeLikeRepo) Create(_ context.Context, like *model.Like) error {
	if f.failCreate {
		return errors.New("insert failed")
	}
	if f.likes[like.ArticleID] == nil {
		f.likes[like.ArticleID] = make(map[string]bool)
	}
	f.likes[like.ArticleID][like.UserID] = true
	return nil
}

func (f *fakeLikeRepo) Delete(_ context.Context, articleID, userID string) error {
	if f.failDelete {
		return errors.New("delete failed")
	}
	delete(f.likes[articleID], userID)
	return nil
}

func (f *fakeLikeRepo) setLike(articleID, userID string) {
	if f.likes[articleID] == nil {
		f.likes[articleID] = make(map[string]bool)
	}
	f.likes[articleID][userID] = true
}

func newTestStore(t *testing.T, repo LikeQuerier, session CurrentUserProvider) *Store {
	t.Helper()
	s := NewStore(repo, session)
	t.Cleanup(s.Stop)
	return s
}

// TestStore_Get はいいね状態の取得とキャッシュを検証する。
func TestStore_Get(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "user-1")
	repo.setLike("article-1", "user-2")

	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})

	state, err := s.Get(context.Background(), "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state.Count != 2 || !state.IsLiked {
		t.Errorf("取得結果が不正: got %+v, want {Count:2 IsLiked:true}", state)
	}

	// 新鮮なキャッシュはストアに再問い合わせしない
	calls := repo.countCalls
	if _, err := s.Get(context.Background(), "article-1"); err != nil {
		t.Fatalf("2回目のGetがエラー: %v", err)
	}
	if repo.countCalls != calls {
		t.Errorf("新鮮なキャッシュでストアに問い合わせた: calls %d -> %d", calls, repo.countCalls)
	}
}

// TestStore_Get_Anonymous は未認証時のIsLikedが常にfalseになることを検証する。
func TestStore_Get_Anonymous(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "user-1")

	s := newTestStore(t, repo, &fakeSession{})

	state, err := s.Get(context.Background(), "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state.Count != 1 || state.IsLiked {
		t.Errorf("未認証の取得結果が不正: got %+v, want {Count:1 IsLiked:false}", state)
	}
}

// TestStore_Get_RefetchAfterFresh は新鮮期間を過ぎたエントリの再取得を検証する。
func TestStore_Get_RefetchAfterFresh(t *testing.T) {
	repo := newFakeLikeRepo()
	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})

	current := time.Now()
	s.now = func() time.Time { return current }

	if _, err := s.Get(context.Background(), "article-1"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	// 2分経過後に別ユーザーのいいねが追加された
	repo.setLike("article-1", "user-9")
	current = current.Add(defaultFreshFor + time.Second)

	state, err := s.Get(context.Background(), "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state.Count != 1 {
		t.Errorf("期限切れキャッシュが再取得されていない: got count %d, want 1", state.Count)
	}
}

// TestStore_Toggle_RequiresAuth は未認証トグルがストアに触れず
// AUTH_REQUIREDを返すことを検証する。
func TestStore_Toggle_RequiresAuth(t *testing.T) {
	repo := newFakeLikeRepo()
	s := newTestStore(t, repo, &fakeSession{})

	_, err := s.Toggle(context.Background(), "article-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthRequired {
		t.Fatalf("AUTH_REQUIREDが返らなかった: %v", err)
	}
	if repo.countCalls != 0 {
		t.Error("未認証トグルでストアに問い合わせた")
	}
}

// TestStore_Toggle_Reversibility はトグル2回で初期状態に戻ることを検証する。
func TestStore_Toggle_Reversibility(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "other-user")

	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})
	ctx := context.Background()

	initial, err := s.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if initial.Count != 1 || initial.IsLiked {
		t.Fatalf("初期状態が不正: %+v", initial)
	}

	after1, err := s.Toggle(ctx, "article-1")
	if err != nil {
		t.Fatalf("1回目のToggleがエラー: %v", err)
	}
	if after1.Count != 2 || !after1.IsLiked {
		t.Errorf("1回目のトグル結果が不正: got %+v, want {Count:2 IsLiked:true}", after1)
	}

	after2, err := s.Toggle(ctx, "article-1")
	if err != nil {
		t.Fatalf("2回目のToggleがエラー: %v", err)
	}
	if after2 != initial {
		t.Errorf("トグル2回で初期状態に戻らない: got %+v, want %+v", after2, initial)
	}
}

// TestStore_Toggle_RollbackOnFailure は書き込み失敗時に
// トグル前のスナップショットへ巻き戻ることを検証する。
func TestStore_Toggle_RollbackOnFailure(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "other-user")
	repo.failCreate = true

	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})
	ctx := context.Background()

	initial, err := s.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	state, err := s.Toggle(ctx, "article-1")
	if err == nil {
		t.Fatal("書き込み失敗でもエラーが返らなかった")
	}
	if state != initial {
		t.Errorf("失敗後の状態がトグル前と一致しない: got %+v, want %+v", state, initial)
	}

	// キャッシュ値も巻き戻っている
	cached, err := s.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if cached != initial {
		t.Errorf("キャッシュが巻き戻っていない: got %+v, want %+v", cached, initial)
	}
}

// TestStore_Toggle_WithoutPriorGet は取得前のトグルが現在値を
// 取得してから反転することを検証する。
func TestStore_Toggle_WithoutPriorGet(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "user-1")

	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})

	state, err := s.Toggle(context.Background(), "article-1")
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if state.Count != 0 || state.IsLiked {
		t.Errorf("いいね解除の結果が不正: got %+v, want {Count:0 IsLiked:false}", state)
	}
}

// TestStore_Toggle_IndependentArticles は異なる記事のトグルが
// 互いに影響しないことを検証する。
func TestStore_Toggle_IndependentArticles(t *testing.T) {
	repo := newFakeLikeRepo()
	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})
	ctx := context.Background()

	if _, err := s.Toggle(ctx, "article-1"); err != nil {
		t.Fatalf("article-1のToggleがエラー: %v", err)
	}
	if _, err := s.Toggle(ctx, "article-2"); err != nil {
		t.Fatalf("article-2のToggleがエラー: %v", err)
	}

	state1, _ := s.Get(ctx, "article-1")
	state2, _ := s.Get(ctx, "article-2")
	if !state1.IsLiked || !state2.IsLiked {
		t.Errorf("独立したトグルの結果が不正: article-1=%+v article-2=%+v", state1, state2)
	}
}

// TestStore_EvictStale は未アクセスエントリの追い出しを検証する。
func TestStore_EvictStale(t *testing.T) {
	repo := newFakeLikeRepo()
	s := newTestStore(t, repo, &fakeSession{userID: "user-1"})

	current := time.Now()
	s.now = func() time.Time { return current }

	if _, err := s.Get(context.Background(), "article-1"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if s.EntryCount() != 1 {
		t.Fatalf("エントリ数が不正: got %d, want 1", s.EntryCount())
	}

	current = current.Add(defaultEvictAfter + time.Second)
	s.evictStale()

	if s.EntryCount() != 0 {
		t.Errorf("期限切れエントリが追い出されていない: count=%d", s.EntryCount())
	}
}

// TestStore_Invalidate はサインイン/サインアウト時の全キャッシュ破棄を検証する。
func TestStore_Invalidate(t *testing.T) {
	repo := newFakeLikeRepo()
	repo.setLike("article-1", "user-1")

	session := &fakeSession{userID: "user-1"}
	s := newTestStore(t, repo, session)
	ctx := context.Background()

	state, _ := s.Get(ctx, "article-1")
	if !state.IsLiked {
		t.Fatalf("初期状態が不正: %+v", state)
	}

	// サインアウト後はIsLikedがfalseに変わる
	session.userID = ""
	s.Invalidate()

	state, err := s.Get(ctx, "article-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if state.IsLiked {
		t.Errorf("サインアウト後もIsLikedがtrueのまま: %+v", state)
	}
}
