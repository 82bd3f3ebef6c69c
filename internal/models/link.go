package models

import (
	"time"
)

type Link struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	OriginalURL  string     `json:"original_url"`
	Owner        string     `json:"owner"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Deleted      bool       `json:"-"`
	Visits       int64      `json:"visits"`
	UniqueVisits int64      `json:"unique_visits"`
}

// IsExpired сообщает, истёк ли срок действия ссылки. Истёкшие ссылки
// сохраняются и остаются редактируемыми, просто перестают резолвиться.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

type Alias struct {
	ID          int64     `json:"id"`
	LinkID      int64     `json:"link_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Deleted     bool      `json:"-"`
}

// Resolution — всё, что нужно пути редиректа: ссылка плюс алиас, по
// которому пришли. Кэшируется в Redis одним JSON-значением.
type Resolution struct {
	Link    Link   `json:"link"`
	AliasID int64  `json:"alias_id"`
	Alias   string `json:"alias"`
}

type CreateLinkInput struct {
	Title       string     `json:"title"`
	OriginalURL string     `json:"original_url" binding:"required"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Description string     `json:"description"`
}

type UpdateLinkInput struct {
	Title       *string    `json:"title,omitempty"`
	OriginalURL *string    `json:"original_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
