package domain

import "time"

// Record type discriminators stored alongside every item.
const (
	TypeArticle = "Article"
	TypeUser    = "User"
)

// Article is one piece of content owned by a user.
// (OwnerID, ID) is its identity; ID alone is globally unique.
type Article struct {
	ID        string    `json:"articleId"`
	OwnerID   string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
