package store

import (
	"time"

	"blogstore/pkg/domain"
)

// GORM models used for persistence. Articles keep the single-table
// composite key so every backend shares one addressing scheme.
type ArticleModel struct {
	PK        string    `gorm:"column:pk;primaryKey"`
	SK        string    `gorm:"column:sk;primaryKey"`
	Type      string    `gorm:"not null;index:idx_articles_by_created,priority:1"`
	ArticleID string    `gorm:"not null;index"`
	OwnerID   string    `gorm:"not null"`
	Title     string    `gorm:"type:text;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false;index:idx_articles_by_created,priority:2,sort:desc"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (ArticleModel) TableName() string { return "articles" }

type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
}

func (UserModel) TableName() string { return "users" }

func articleToModel(a domain.Article) ArticleModel {
	return ArticleModel{
		PK:        UserPK(a.OwnerID),
		SK:        ArticleSK(a.ID),
		Type:      domain.TypeArticle,
		ArticleID: a.ID,
		OwnerID:   a.OwnerID,
		Title:     a.Title,
		Content:   a.Content,
		CreatedAt: a.CreatedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func articleFromModel(m ArticleModel) domain.Article {
	ownerID := m.OwnerID
	if ownerID == "" {
		ownerID = userIDFromPK(m.PK)
	}
	articleID := m.ArticleID
	if articleID == "" {
		articleID = articleIDFromSK(m.SK)
	}
	return domain.Article{
		ID:        articleID,
		OwnerID:   ownerID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UTC(),
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
