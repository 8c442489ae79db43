package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"blogstore/pkg/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 41027311

type GormStoreOptions struct {
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithGormLogLevel overrides the GORM logger level (default Warn).
func WithGormLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{
		LogLevel:      gormlogger.Warn,
		SlowThreshold: time.Second,
	}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ArticleModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PutArticle upserts an article on its composite key.
func (s *GormStore) PutArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	model := articleToModel(a)
	if err := upsertArticle(s.db.WithContext(ctx), &model).Error; err != nil {
		return domain.Article{}, storeErr("put article", err)
	}
	return articleFromModel(model), nil
}

// GetArticle retrieves one article by composite key.
func (s *GormStore) GetArticle(ctx context.Context, ownerID, articleID string) (domain.Article, bool, error) {
	var model ArticleModel
	err := s.db.WithContext(ctx).
		Where("pk = ? AND sk = ?", UserPK(ownerID), ArticleSK(articleID)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Article{}, false, nil
		}
		return domain.Article{}, false, storeErr("get article", err)
	}
	return articleFromModel(model), true, nil
}

// UpdateArticle sets title/content and stamps updated_at, returning the new row.
func (s *GormStore) UpdateArticle(ctx context.Context, ownerID, articleID string, fields ArticleFields) (domain.Article, bool, error) {
	var model ArticleModel
	res := updateArticle(s.db.WithContext(ctx), &model, ownerID, articleID, fields, clock())
	if res.Error != nil {
		return domain.Article{}, false, storeErr("update article", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Article{}, false, nil
	}
	return articleFromModel(model), true, nil
}

// DeleteArticle removes an article; deleting a missing row is not an error.
func (s *GormStore) DeleteArticle(ctx context.Context, ownerID, articleID string) error {
	err := deleteArticle(s.db.WithContext(ctx), ownerID, articleID).Error
	return storeErr("delete article", err)
}

// ListArticlesByOwner returns the owner's articles ordered by sort key.
func (s *GormStore) ListArticlesByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	var models []ArticleModel
	if err := ownerArticles(s.db.WithContext(ctx), &models, ownerID).Error; err != nil {
		return nil, storeErr("list articles by owner", err)
	}
	return articlesFromModels(models), nil
}

// ListArticlesByDate walks idx_articles_by_created, newest first.
func (s *GormStore) ListArticlesByDate(ctx context.Context) ([]domain.Article, error) {
	var models []ArticleModel
	if err := articlesByDate(s.db.WithContext(ctx), &models).Error; err != nil {
		return nil, storeErr("list articles by date", err)
	}
	return articlesFromModels(models), nil
}

func upsertArticle(tx *gorm.DB, model *ArticleModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pk"}, {Name: "sk"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "article_id", "owner_id", "title", "content", "created_at", "updated_at"}),
	}).Create(model)
}

func updateArticle(tx *gorm.DB, model *ArticleModel, ownerID, articleID string, fields ArticleFields, at time.Time) *gorm.DB {
	return tx.Model(model).
		Clauses(clause.Returning{}).
		Where("pk = ? AND sk = ?", UserPK(ownerID), ArticleSK(articleID)).
		Updates(map[string]any{
			"title":      fields.Title,
			"content":    fields.Content,
			"updated_at": at,
		})
}

func deleteArticle(tx *gorm.DB, ownerID, articleID string) *gorm.DB {
	return tx.Where("pk = ? AND sk = ?", UserPK(ownerID), ArticleSK(articleID)).
		Delete(&ArticleModel{})
}

// Sort keys compare in byte order, matching a DynamoDB sort-key range
// regardless of the database default collation.
func ownerArticles(tx *gorm.DB, dest *[]ArticleModel, ownerID string) *gorm.DB {
	return tx.Where("pk = ? AND sk LIKE ?", UserPK(ownerID), articleSKPrefix+"%").
		Order(`sk COLLATE "C" ASC`).
		Find(dest)
}

func articlesByDate(tx *gorm.DB, dest *[]ArticleModel) *gorm.DB {
	return tx.Where("type = ?", domain.TypeArticle).
		Order("created_at DESC").
		Find(dest)
}

func articlesFromModels(models []ArticleModel) []domain.Article {
	res := make([]domain.Article, 0, len(models))
	for _, m := range models {
		res = append(res, articleFromModel(m))
	}
	return res
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "password_hash"}),
	}).Create(&model).Error
	return storeErr("save user", err)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.getUser(ctx, "get user by email", "email = ?", email)
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	return s.getUser(ctx, "get user", "id = ?", id)
}

func (s *GormStore) getUser(ctx context.Context, op, query string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, storeErr(op, err)
	}
	return userFromModel(model), true, nil
}
