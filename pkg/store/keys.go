package store

import (
	"strings"
	"time"
)

// Single-table key scheme shared by every backend.
const (
	userPKPrefix     = "USER#"
	articleSKPrefix  = "ARTICLE#"
	profileSK        = "PROFILE"
	ArticlesByDateIx = "GSI_Articles_By_Created"
	UserEmailIx      = "GSI_UserEmail"
)

// TimeLayout is fixed width so lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// UserPK builds the partition key for everything owned by a user.
func UserPK(userID string) string {
	return userPKPrefix + userID
}

// ArticleSK builds the sort key of one article.
func ArticleSK(articleID string) string {
	return articleSKPrefix + articleID
}

func userIDFromPK(pk string) string {
	return strings.TrimPrefix(pk, userPKPrefix)
}

func articleIDFromSK(sk string) string {
	return strings.TrimPrefix(sk, articleSKPrefix)
}

// Now returns the current UTC time at the precision persisted by stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout or RFC 3339 timestamp.
func ParseTime(value string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, value)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
