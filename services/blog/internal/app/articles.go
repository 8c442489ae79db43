package app

import (
	"context"
	"encoding/json"
	"strings"

	"blogstore/internal/util"
	"blogstore/pkg/domain"
	"blogstore/pkg/store"
)

const articleCacheKeyPrefix = "article:"

// ArticleCacheKey is scoped by article id only. This relies on article ids
// being globally unique across owners (see util.NewID).
func ArticleCacheKey(articleID string) string {
	return articleCacheKeyPrefix + articleID
}

// CreateArticle writes a new article with a fresh id. Both timestamps come
// from one clock reading. The cache is left alone; the first read fills it.
func (a *App) CreateArticle(ctx context.Context, ownerID, title, content string) (domain.Article, error) {
	ownerID = strings.TrimSpace(ownerID)
	if err := required([2]string{"userId", ownerID}, [2]string{"title", title}, [2]string{"content", content}); err != nil {
		return domain.Article{}, err
	}
	now := store.Now()
	article := domain.Article{
		ID:        util.NewID(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	saved, err := a.store.PutArticle(sctx, article)
	if err != nil {
		return domain.Article{}, operationError("create article", err)
	}
	return saved, nil
}

// GetArticle is a cache-aside read: cache first, then the store on a miss
// or cache failure, then a cache fill after a confirmed store hit.
// A missing article is reported with ok=false and a nil error.
func (a *App) GetArticle(ctx context.Context, ownerID, articleID string) (domain.Article, bool, error) {
	ownerID = strings.TrimSpace(ownerID)
	articleID = strings.TrimSpace(articleID)
	if err := required([2]string{"userId", ownerID}, [2]string{"articleId", articleID}); err != nil {
		return domain.Article{}, false, err
	}
	logger := util.LoggerFromContext(ctx)
	key := ArticleCacheKey(articleID)

	if article, ok := a.cachedArticle(ctx, key); ok {
		if article.OwnerID == ownerID {
			return article, true, nil
		}
		// Cached under another owner: the store has the final say for this key.
		logger.Debug("cache entry owner mismatch", "key", key, "user_id", ownerID)
	}

	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	article, ok, err := a.store.GetArticle(sctx, ownerID, articleID)
	if err != nil {
		return domain.Article{}, false, operationError("get article", err)
	}
	if !ok {
		return domain.Article{}, false, nil
	}

	payload, err := json.Marshal(article)
	if err != nil {
		logger.Warn("encode article for cache", "event", "cache_populate_failed", "key", key, "err", err)
		return article, true, nil
	}
	if err := a.cache.Set(ctx, key, string(payload), a.cacheTTL); err != nil {
		logger.Warn("cache populate failed", "event", "cache_populate_failed", "key", key, "err", err)
	}
	return article, true, nil
}

func (a *App) cachedArticle(ctx context.Context, key string) (domain.Article, bool) {
	logger := util.LoggerFromContext(ctx)
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed, falling back to store", "event", "cache_read_failed", "key", key, "err", err)
		return domain.Article{}, false
	}
	if !ok {
		return domain.Article{}, false
	}
	var article domain.Article
	if err := json.Unmarshal([]byte(raw), &article); err != nil {
		logger.Warn("undecodable cache entry", "event", "cache_read_failed", "key", key, "err", err)
		return domain.Article{}, false
	}
	return article, true
}

// UpdateArticle replaces title and content in the store and then drops the
// cache entry. The entry is never refreshed in place. Invalidation runs
// for every store outcome, including not-found and errors.
func (a *App) UpdateArticle(ctx context.Context, ownerID, articleID, title, content string) (domain.Article, error) {
	ownerID = strings.TrimSpace(ownerID)
	articleID = strings.TrimSpace(articleID)
	if err := required(
		[2]string{"userId", ownerID},
		[2]string{"articleId", articleID},
		[2]string{"title", title},
		[2]string{"content", content},
	); err != nil {
		return domain.Article{}, err
	}

	sctx, cancel := a.storeCtx(ctx)
	updated, ok, err := a.store.UpdateArticle(sctx, ownerID, articleID, store.ArticleFields{Title: title, Content: content})
	cancel()
	a.invalidate(ctx, "update", ownerID, articleID)

	if err != nil {
		return domain.Article{}, operationError("update article", err)
	}
	if !ok {
		return domain.Article{}, ErrArticleNotFound
	}
	return updated, nil
}

// DeleteArticle removes the article from the store, then from the cache.
// Deleting a missing article succeeds.
func (a *App) DeleteArticle(ctx context.Context, ownerID, articleID string) error {
	ownerID = strings.TrimSpace(ownerID)
	articleID = strings.TrimSpace(articleID)
	if err := required([2]string{"userId", ownerID}, [2]string{"articleId", articleID}); err != nil {
		return err
	}

	sctx, cancel := a.storeCtx(ctx)
	err := a.store.DeleteArticle(sctx, ownerID, articleID)
	cancel()
	a.invalidate(ctx, "delete", ownerID, articleID)

	if err != nil {
		return operationError("delete article", err)
	}
	return nil
}

// invalidate drops the cached read after a store write. A failure leaves a
// stale entry live until TTL expiry; it is logged at error level and does
// not fail the write, which has already been applied.
func (a *App) invalidate(ctx context.Context, op, ownerID, articleID string) {
	key := ArticleCacheKey(articleID)
	// Detached so a cancelled request still drops the entry.
	if err := a.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		util.LoggerFromContext(ctx).Error("cache invalidation failed",
			"event", "cache_invalidation_failed",
			"op", op,
			"key", key,
			"user_id", ownerID,
			"article_id", articleID,
			"ttl_seconds", int64(a.cacheTTL.Seconds()),
			"err", err,
		)
	}
}

// ListArticles returns one owner's articles in key order. Listings are
// never cached.
func (a *App) ListArticles(ctx context.Context, ownerID string) ([]domain.Article, error) {
	ownerID = strings.TrimSpace(ownerID)
	if err := required([2]string{"userId", ownerID}); err != nil {
		return nil, err
	}
	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	articles, err := a.store.ListArticlesByOwner(sctx, ownerID)
	if err != nil {
		return nil, operationError("list articles", err)
	}
	return articles, nil
}

// ListArticlesByDate returns every article, newest first.
func (a *App) ListArticlesByDate(ctx context.Context) ([]domain.Article, error) {
	sctx, cancel := a.storeCtx(ctx)
	defer cancel()
	articles, err := a.store.ListArticlesByDate(sctx)
	if err != nil {
		return nil, operationError("list articles by date", err)
	}
	return articles, nil
}
