package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"blogstore/pkg/domain"
)

type memoryKey struct {
	pk string
	sk string
}

// MemoryStore keeps articles and users in-process. It mirrors the key
// scheme and orderings of the durable backends and is used for local runs
// and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[memoryKey]domain.Article
	users    map[string]domain.User // key: user ID
	email    map[string]string      // email -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[memoryKey]domain.Article),
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
	}
}

func articleKey(ownerID, articleID string) memoryKey {
	return memoryKey{pk: UserPK(ownerID), sk: ArticleSK(articleID)}
}

// PutArticle stores or replaces an article.
func (m *MemoryStore) PutArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, storeErr("put article", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[articleKey(a.OwnerID, a.ID)] = a
	return a, nil
}

// GetArticle retrieves one article by composite key.
func (m *MemoryStore) GetArticle(ctx context.Context, ownerID, articleID string) (domain.Article, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, false, storeErr("get article", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[articleKey(ownerID, articleID)]
	return a, ok, nil
}

// UpdateArticle sets title/content and UpdatedAt on an existing article.
func (m *MemoryStore) UpdateArticle(ctx context.Context, ownerID, articleID string, fields ArticleFields) (domain.Article, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, false, storeErr("update article", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := articleKey(ownerID, articleID)
	a, ok := m.articles[key]
	if !ok {
		return domain.Article{}, false, nil
	}
	a.Title = fields.Title
	a.Content = fields.Content
	a.UpdatedAt = clock()
	m.articles[key] = a
	return a, true, nil
}

// DeleteArticle removes an article; missing items are ignored.
func (m *MemoryStore) DeleteArticle(ctx context.Context, ownerID, articleID string) error {
	if err := ctx.Err(); err != nil {
		return storeErr("delete article", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.articles, articleKey(ownerID, articleID))
	return nil
}

// ListArticlesByOwner returns the owner's articles ordered by sort key.
func (m *MemoryStore) ListArticlesByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("list articles by owner", err)
	}
	pk := UserPK(ownerID)
	m.mu.RLock()
	res := make([]domain.Article, 0)
	for key, a := range m.articles {
		if key.pk == pk && strings.HasPrefix(key.sk, articleSKPrefix) {
			res = append(res, a)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		return ArticleSK(res[i].ID) < ArticleSK(res[j].ID)
	})
	return res, nil
}

// ListArticlesByDate returns all articles, newest first.
func (m *MemoryStore) ListArticlesByDate(ctx context.Context) ([]domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("list articles by date", err)
	}
	m.mu.RLock()
	res := make([]domain.Article, 0, len(m.articles))
	for _, a := range m.articles {
		res = append(res, a)
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// SaveUser registers or replaces a user.
func (m *MemoryStore) SaveUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return storeErr("save user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, storeErr("get user by email", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, storeErr("get user", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}
