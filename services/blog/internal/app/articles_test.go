package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"blogstore/pkg/domain"
	"blogstore/pkg/store"
)

func TestCreateThenReadReturnsSameArticle(t *testing.T) {
	a, s, srv := newRedisApp(t)
	ctx := context.Background()

	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.OwnerID != "u1" || created.Title != "T" || created.Content != "C" {
		t.Fatalf("unexpected created article: %+v", created)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("createdAt %s != updatedAt %s", created.CreatedAt, created.UpdatedAt)
	}
	if srv.Exists(ArticleCacheKey(created.ID)) {
		t.Fatalf("create must not populate the cache")
	}

	got, ok, err := a.GetArticle(ctx, "u1", created.ID)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if got.Title != "T" || got.Content != "C" || got.OwnerID != "u1" {
		t.Fatalf("unexpected read: %+v", got)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("timestamps drifted: %+v vs %+v", got, created)
	}
	if s.count("put") != 1 {
		t.Fatalf("expected one store put, got %d", s.count("put"))
	}
}

func TestReadPopulatesCacheWithTTL(t *testing.T) {
	a, _, srv := newRedisApp(t)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("read: %v", err)
	}

	key := "article:" + created.ID
	if got := srv.TTL(key); got != 3600*time.Second {
		t.Fatalf("cache ttl = %s, want 3600s", got)
	}
	raw, err := srv.Get(key)
	if err != nil {
		t.Fatalf("cached value missing: %v", err)
	}
	var cached domain.Article
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("decode cached value: %v", err)
	}
	if cached.ID != created.ID || cached.Title != "T" {
		t.Fatalf("unexpected cached article: %+v", cached)
	}

	srv.FastForward(3601 * time.Second)
	if srv.Exists(key) {
		t.Fatalf("cache entry should expire after its ttl")
	}
}

func TestCacheHitDoesNotTouchStore(t *testing.T) {
	a, s, _ := newRedisApp(t)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("first read: %v", err)
	}
	before := s.total()

	got, ok, err := a.GetArticle(ctx, "u1", created.ID)
	if err != nil || !ok {
		t.Fatalf("second read: ok=%v err=%v", ok, err)
	}
	if got.Title != "T" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if after := s.total(); after != before {
		t.Fatalf("cache hit reached the store: %d calls before, %d after", before, after)
	}
}

func TestUpdateInvalidatesCachedEntry(t *testing.T) {
	a, _, srv := newRedisApp(t)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	key := ArticleCacheKey(created.ID)
	if !srv.Exists(key) {
		t.Fatalf("expected cache entry after read")
	}

	updated, err := a.UpdateArticle(ctx, "u1", created.ID, "T2", "C2")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "T2" || updated.Content != "C2" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("createdAt changed on update: %s -> %s", created.CreatedAt, updated.CreatedAt)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Fatalf("updatedAt %s before createdAt %s", updated.UpdatedAt, updated.CreatedAt)
	}
	if srv.Exists(key) {
		t.Fatalf("update must delete the cache entry, not refresh it")
	}

	got, ok, err := a.GetArticle(ctx, "u1", created.ID)
	if err != nil || !ok {
		t.Fatalf("read after update: ok=%v err=%v", ok, err)
	}
	if got.Title != "T2" || got.Content != "C2" {
		t.Fatalf("read returned pre-update data: %+v", got)
	}
}

func TestUpdateMissingArticleStillInvalidates(t *testing.T) {
	a, s, srv := newRedisApp(t)
	key := ArticleCacheKey("ghost")
	if err := srv.Set(key, `{"articleId":"ghost","userId":"u1","title":"old"}`); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	_, err := a.UpdateArticle(context.Background(), "u1", "ghost", "T2", "C2")
	if !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if srv.Exists(key) {
		t.Fatalf("invalidation must run even when the article is missing")
	}
	if _, ok, _ := s.MemoryStore.GetArticle(context.Background(), "u1", "ghost"); ok {
		t.Fatalf("update must not create a missing article")
	}
}

func TestDeleteThenReadIsNotFound(t *testing.T) {
	a, _, srv := newRedisApp(t)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	if err := a.DeleteArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if srv.Exists(ArticleCacheKey(created.ID)) {
		t.Fatalf("delete must remove the cache entry")
	}
	for i := 0; i < 2; i++ {
		if _, ok, err := a.GetArticle(ctx, "u1", created.ID); err != nil || ok {
			t.Fatalf("read %d after delete: ok=%v err=%v", i, ok, err)
		}
	}
	if srv.Exists(ArticleCacheKey(created.ID)) {
		t.Fatalf("not-found reads must not populate the cache")
	}
	if err := a.DeleteArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestWritesReachStoreBeforeCacheInvalidation(t *testing.T) {
	calls := &callLog{}
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, loggedStore{countingStore: s, log: calls}, loggedCache{stubCache: c, log: calls})
	ctx := context.Background()

	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := calls.reset(); len(got) != 0 {
		t.Fatalf("create must not touch the cache, events=%v", got)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"update", func() error { _, err := a.UpdateArticle(ctx, "u1", created.ID, "T2", "C2"); return err }},
		{"delete", func() error { return a.DeleteArticle(ctx, "u1", created.ID) }},
		{"update missing", func() error { _, err := a.UpdateArticle(ctx, "u1", created.ID, "T3", "C3"); return err }},
		{"update failing store", func() error {
			s.fail = errors.New("store down")
			_, err := a.UpdateArticle(ctx, "u1", created.ID, "T4", "C4")
			return err
		}},
		{"delete failing store", func() error { return a.DeleteArticle(ctx, "u1", created.ID) }},
	}
	for _, step := range steps {
		_ = step.run()
		if got := strings.Join(calls.reset(), " "); got != "store cache" {
			t.Fatalf("%s: events = [%s], want [store cache]", step.name, got)
		}
	}
}

func TestReadFallsBackToStoreOnCacheFailure(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx, logs := captureLogs(context.Background())

	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.getErr = errors.New("connection refused")
	c.setErr = errors.New("connection refused")

	got, ok, err := a.GetArticle(ctx, "u1", created.ID)
	if err != nil || !ok {
		t.Fatalf("read with broken cache: ok=%v err=%v", ok, err)
	}
	if got.Title != "T" {
		t.Fatalf("unexpected article: %+v", got)
	}
	if s.count("get") != 1 {
		t.Fatalf("expected store read, got %d", s.count("get"))
	}
	if !strings.Contains(logs.String(), "cache_read_failed") || !strings.Contains(logs.String(), "cache_populate_failed") {
		t.Fatalf("expected cache failures to be logged, got %s", logs.String())
	}
}

func TestReadIgnoresUndecodableCacheEntry(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := ArticleCacheKey(created.ID)
	c.entries[key] = "not-json"

	got, ok, err := a.GetArticle(ctx, "u1", created.ID)
	if err != nil || !ok || got.Title != "T" {
		t.Fatalf("read: got=%+v ok=%v err=%v", got, ok, err)
	}
	if c.entries[key] == "not-json" {
		t.Fatalf("expected the entry to be repopulated from the store")
	}
}

func TestReadDoesNotServeEntryCachedForAnotherOwner(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx := context.Background()
	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	if _, ok, err := a.GetArticle(ctx, "u2", created.ID); err != nil || ok {
		t.Fatalf("read as other owner: ok=%v err=%v", ok, err)
	}
	if !c.has(ArticleCacheKey(created.ID)) {
		t.Fatalf("owner's cache entry should be left in place")
	}
}

func TestUpdateSucceedsWhenInvalidationFails(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx, logs := captureLogs(context.Background())

	created, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.delErr = errors.New("connection reset")

	updated, err := a.UpdateArticle(ctx, "u1", created.ID, "T2", "C2")
	if err != nil {
		t.Fatalf("update should succeed despite invalidation failure: %v", err)
	}
	if updated.Title != "T2" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	out := logs.String()
	if !strings.Contains(out, `"event":"cache_invalidation_failed"`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("expected error-level invalidation log, got %s", out)
	}
	if !strings.Contains(out, created.ID) {
		t.Fatalf("invalidation log should name the article, got %s", out)
	}

	if err := a.DeleteArticle(ctx, "u1", created.ID); err != nil {
		t.Fatalf("delete should succeed despite invalidation failure: %v", err)
	}
}

func TestInvalidationRunsWhenRequestCancelled(t *testing.T) {
	a, _, srv := newRedisApp(t)
	created, err := a.CreateArticle(context.Background(), "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := ArticleCacheKey(created.ID)
	if err := srv.Set(key, "stale"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.DeleteArticle(ctx, "u1", created.ID); err == nil {
		t.Fatalf("expected store failure on a cancelled context")
	}
	if srv.Exists(key) {
		t.Fatalf("cache entry should be dropped even when the request was cancelled")
	}
}

func TestStoreFailureBecomesOperationError(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	s.fail = &store.StoreError{Op: "test", Err: errors.New("throughput exceeded")}
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["create"] = a.CreateArticle(ctx, "u1", "T", "C")
	_, _, checks["read"] = a.GetArticle(ctx, "u1", "a1")
	_, checks["update"] = a.UpdateArticle(ctx, "u1", "a1", "T", "C")
	checks["delete"] = a.DeleteArticle(ctx, "u1", "a1")
	_, checks["listByOwner"] = a.ListArticles(ctx, "u1")
	_, checks["listByDate"] = a.ListArticlesByDate(ctx)

	for op, err := range checks {
		var opErr *OperationError
		if !errors.As(err, &opErr) {
			t.Fatalf("%s: expected OperationError, got %v", op, err)
		}
		if opErr.Status != http.StatusInternalServerError {
			t.Fatalf("%s: status = %d, want 500", op, opErr.Status)
		}
		if !errors.Is(err, store.ErrStore) {
			t.Fatalf("%s: expected store error to be preserved, got %v", op, err)
		}
	}
}

func TestExpiredDeadlineIsServiceUnavailable(t *testing.T) {
	a, _, _ := newRedisApp(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, _, err := a.GetArticle(ctx, "u1", "a1")
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 operation error, got %v", err)
	}
}

func TestValidationFailsBeforeIO(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx := context.Background()

	tests := []struct {
		name  string
		field string
		call  func() error
	}{
		{"create empty title", "title", func() error { _, err := a.CreateArticle(ctx, "u1", "", "C"); return err }},
		{"create blank content", "content", func() error { _, err := a.CreateArticle(ctx, "u1", "T", "  "); return err }},
		{"create empty owner", "userId", func() error { _, err := a.CreateArticle(ctx, "", "T", "C"); return err }},
		{"read empty id", "articleId", func() error { _, _, err := a.GetArticle(ctx, "u1", ""); return err }},
		{"update empty content", "content", func() error { _, err := a.UpdateArticle(ctx, "u1", "a1", "T", ""); return err }},
		{"update empty owner", "userId", func() error { _, err := a.UpdateArticle(ctx, " ", "a1", "T", "C"); return err }},
		{"delete empty id", "articleId", func() error { return a.DeleteArticle(ctx, "u1", "") }},
		{"list empty owner", "userId", func() error { _, err := a.ListArticles(ctx, ""); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
	if s.total() != 0 || c.calls != 0 {
		t.Fatalf("validation must fail before any I/O: store=%d cache=%d", s.total(), c.calls)
	}
}

func TestListingsBypassCache(t *testing.T) {
	s := newCountingStore()
	c := newStubCache()
	a := newTestApp(t, s, c)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.Article{
		{ID: "a", OwnerID: "u1", Title: "first", Content: "c", CreatedAt: base, UpdatedAt: base},
		{ID: "b", OwnerID: "u2", Title: "second", Content: "c", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)},
		{ID: "c", OwnerID: "u1", Title: "third", Content: "c", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
	}
	for _, art := range seed {
		if _, err := s.MemoryStore.PutArticle(ctx, art); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := a.ListArticlesByDate(ctx)
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[1].ID != "b" || all[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("listing not in non-increasing createdAt order at %d", i)
		}
	}

	mine, err := a.ListArticles(ctx, "u1")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "a" || mine[1].ID != "c" {
		t.Fatalf("unexpected owner listing: %+v", mine)
	}
	if c.calls != 0 {
		t.Fatalf("listings must not touch the cache, got %d calls", c.calls)
	}
}

func TestScenario(t *testing.T) {
	a, _, _ := newRedisApp(t)
	ctx := context.Background()

	art, err := a.CreateArticle(ctx, "u1", "T", "C")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := a.GetArticle(ctx, "u1", art.ID); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := a.UpdateArticle(ctx, "u1", art.ID, "T2", "C2"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, err := a.GetArticle(ctx, "u1", art.ID)
	if err != nil || got.Title != "T2" {
		t.Fatalf("read after update: %+v err=%v", got, err)
	}
	if err := a.DeleteArticle(ctx, "u1", art.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := a.GetArticle(ctx, "u1", art.ID); err != nil || ok {
		t.Fatalf("read after delete: ok=%v err=%v", ok, err)
	}
	if _, err := a.CreateArticle(ctx, "u1", "", "C"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	first, err := a.CreateArticle(ctx, "u1", "one", "c")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := a.CreateArticle(ctx, "u2", "two", "c")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	all, err := a.ListArticlesByDate(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatalf("expected [second, first], got %+v", all)
	}
}
