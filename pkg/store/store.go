package store

import (
	"context"
	"errors"
	"fmt"

	"blogstore/pkg/domain"
)

// ArticleStore is the durable source of truth for articles.
//
// Absence is reported through the bool result, never as an error. Every
// error returned by an implementation wraps ErrStore.
type ArticleStore interface {
	// PutArticle upserts the full article and returns what was written.
	PutArticle(ctx context.Context, a domain.Article) (domain.Article, error)
	GetArticle(ctx context.Context, ownerID, articleID string) (domain.Article, bool, error)
	// UpdateArticle replaces title and content, stamps UpdatedAt server-side
	// and returns the full updated article. It never creates a missing item.
	UpdateArticle(ctx context.Context, ownerID, articleID string, fields ArticleFields) (domain.Article, bool, error)
	// DeleteArticle is idempotent.
	DeleteArticle(ctx context.Context, ownerID, articleID string) error
	// ListArticlesByOwner returns the owner's articles in sort-key order.
	ListArticlesByOwner(ctx context.Context, ownerID string) ([]domain.Article, error)
	// ListArticlesByDate returns every article, newest CreatedAt first.
	// Items sharing a CreatedAt have no defined relative order.
	ListArticlesByDate(ctx context.Context) ([]domain.Article, error)
}

// UserStore persists accounts for the identity collaborator.
type UserStore interface {
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
}

// Store is implemented by every durable backend.
type Store interface {
	ArticleStore
	UserStore
}

// ArticleFields is the closed set of mutable article attributes.
type ArticleFields struct {
	Title   string
	Content string
}

// ErrStore marks durable-layer I/O failures.
var ErrStore = errors.New("store failure")

// StoreError wraps an underlying backend failure with the operation name.
// Code carries the backend's error code when it reports one.
type StoreError struct {
	Op   string
	Code string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store %s [%s]: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// clock stamps server-side UpdatedAt values; tests replace it.
var clock = Now
