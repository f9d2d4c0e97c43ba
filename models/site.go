package models

import "time"

// Site is a tracked website owned by a user. Imports are keyed by site.
type Site struct {
	SiteID    uint64     `json:"site_id" gorm:"column:site_id;primaryKey;autoIncrement"`
	UserID    int        `json:"user_id" gorm:"column:user_id;not null;index"`
	Domain    string     `json:"domain" gorm:"column:domain;type:varchar(255);not null;unique"`
	Timezone  string     `json:"timezone" gorm:"column:timezone;type:varchar(64);default:'UTC'"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`

	Owner User `gorm:"foreignKey:UserID" json:"owner,omitempty"`
}

func (Site) TableName() string { return "sites" }
