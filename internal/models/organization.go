package models

import (
	"time"
)

type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type OrganizationMember struct {
	OrgID   int64     `json:"org_id"`
	NetID   string    `json:"netid"`
	IsAdmin bool      `json:"is_admin"`
	AddedAt time.Time `json:"added_at"`
}
