package models

import (
	"time"
)

// Permission — уровень доступа субъекта к ссылке. Owner неявный
// (хранится на самой ссылке), гранты несут viewer/editor.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionViewer
	PermissionEditor
	PermissionOwner
)

func (p Permission) String() string {
	switch p {
	case PermissionViewer:
		return "viewer"
	case PermissionEditor:
		return "editor"
	case PermissionOwner:
		return "owner"
	default:
		return "none"
	}
}

// MarshalJSON выводит уровень как его метку, ту же, что хранит
// таблица грантов.
func (p Permission) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// ParsePermission переводит хранимую/пользовательскую метку в уровень.
// Неизвестные метки дают PermissionNone.
func ParsePermission(s string) Permission {
	switch s {
	case "viewer":
		return PermissionViewer
	case "editor":
		return PermissionEditor
	case "owner":
		return PermissionOwner
	default:
		return PermissionNone
	}
}

// Типы субъектов грантов.
const (
	SubjectUser = "user"
	SubjectOrg  = "org"
)

// Grant связывает ссылку с субъектом (отдельный netid или организация).
// Гранты организаций не разворачиваются по участникам: членство
// перепроверяется в момент проверки прав.
type Grant struct {
	LinkID      int64      `json:"link_id"`
	SubjectType string     `json:"subject_type"`
	Subject     string     `json:"subject"`
	Permission  Permission `json:"permission"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Subject — аутентифицированный принципал, привязанный к запросу.
type Subject struct {
	NetID     string `json:"netid"`
	Admin     bool   `json:"admin"`
	PowerUser bool   `json:"power_user"`
}
