package models

import (
	"time"
)

// Visit — одно записанное срабатывание алиаса. Строки только добавляются
// и переживают удаление алиаса или ссылки, поэтому аналитика остаётся
// проверяемой. Сырой адрес клиента не хранится, только производный от
// него отпечаток.
type Visit struct {
	ID            int64     `json:"id"`
	LinkID        int64     `json:"link_id"`
	AliasID       int64     `json:"alias_id"`
	AliasName     string    `json:"alias_name"`
	Fingerprint   string    `json:"-"`
	Country       string    `json:"country"`
	StateCode     string    `json:"state_code"`
	UserAgent     string    `json:"user_agent"`
	Browser       string    `json:"browser"`
	Platform      string    `json:"platform"`
	RefererDomain string    `json:"referer_domain"`
	FirstTime     bool      `json:"first_time"`
	VisitedAt     time.Time `json:"visited_at"`
}

// VisitEvent несёт метаданные запроса от обработчика редиректа к воркерам
// визитов. Исходный адрес живёт только здесь.
type VisitEvent struct {
	LinkID    int64
	AliasID   int64
	AliasName string
	SourceIP  string
	UserAgent string
	Referer   string
}

// VisitFailure сообщает о событии, которое не удалось сохранить после
// всех повторов.
type VisitFailure struct {
	Event VisitEvent
	Err   error
}

type DailyVisitStats struct {
	Day       string `json:"day"` // календарный день в UTC, YYYY-MM-DD
	Total     int64  `json:"total"`
	FirstTime int64  `json:"first_time"`
}

type GeoStats struct {
	Location string `json:"location"`
	Visits   int64  `json:"visits"`
}

type ClientStats struct {
	Browser  map[string]int64 `json:"browser"`
	Platform map[string]int64 `json:"platform"`
}

type LinkOverview struct {
	LinkID       int64   `json:"link_id"`
	Title        string  `json:"title"`
	Visits       int64   `json:"visits"`
	UniqueVisits int64   `json:"unique_visits"`
	Aliases      []Alias `json:"aliases"`
}
