package models

import "time"

// SiteStat is one imported analytics row: metrics for a site, a day and a
// dimension key ("", "page:/pricing", "referrer:google", "country:AU",
// "device:mobile"). Repeated imports for the same key merge: counters sum,
// everything else is overwritten.
type SiteStat struct {
	ID        uint64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	SiteID    uint64 `json:"site_id" gorm:"column:site_id;not null;uniqueIndex:idx_site_date_dim,priority:1"`
	DateKey   string `json:"date_key" gorm:"column:date_key;type:varchar(10);not null;uniqueIndex:idx_site_date_dim,priority:2"`
	Dimension string `json:"dimension" gorm:"column:dimension;type:varchar(255);not null;default:'';uniqueIndex:idx_site_date_dim,priority:3"`

	Visitors    int64   `json:"visitors" gorm:"column:visitors;not null;default:0"`
	Pageviews   int64   `json:"pageviews" gorm:"column:pageviews;not null;default:0"`
	Sessions    int64   `json:"sessions" gorm:"column:sessions;not null;default:0"`
	BounceRate  float64 `json:"bounce_rate" gorm:"column:bounce_rate;not null;default:0"`
	AvgDuration float64 `json:"avg_duration" gorm:"column:avg_duration;not null;default:0"`
	ImportJobID string  `json:"import_job_id" gorm:"column:import_job_id;type:varchar(36);index"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (SiteStat) TableName() string { return "site_stats" }
