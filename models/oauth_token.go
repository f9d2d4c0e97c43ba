package models

import "time"

// GoogleOAuthToken stores the Google Analytics credentials for one user.
// Access tokens are replaced on refresh; the refresh token survives unless
// Google issues a new one.
type GoogleOAuthToken struct {
	ID           uint64    `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserID       int       `json:"user_id" gorm:"column:user_id;not null;uniqueIndex"`
	AccessToken  string    `json:"-" gorm:"column:access_token;type:text;not null"`
	RefreshToken string    `json:"-" gorm:"column:refresh_token;type:text;not null"`
	TokenType    string    `json:"token_type" gorm:"column:token_type;type:varchar(32)"`
	Scope        string    `json:"scope" gorm:"column:scope;type:text"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"column:expires_at;not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (GoogleOAuthToken) TableName() string { return "google_oauth_tokens" }
