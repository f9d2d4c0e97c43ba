package services

import (
	"context"
	"errors"
	"sync"

	"site-analytics-api/config"
	"site-analytics-api/models"

	"gorm.io/gorm"
)

// TokenStore persists Google OAuth credentials per user. The token manager
// never reaches into storage itself; callers load, refresh and save.
type TokenStore interface {
	// LoadTokens returns (nil, nil) when the user has no stored tokens.
	LoadTokens(ctx context.Context, userID int) (*TokenSet, error)
	SaveTokens(ctx context.Context, userID int, tokens *TokenSet) error
	DeleteTokens(ctx context.Context, userID int) error
}

type gormTokenStore struct {
	db *gorm.DB
}

// NewTokenStore constructs the MySQL-backed token store.
func NewTokenStore(db *gorm.DB) TokenStore {
	if db == nil {
		db = config.DB
	}
	return &gormTokenStore{db: db}
}

func (s *gormTokenStore) LoadTokens(ctx context.Context, userID int) (*TokenSet, error) {
	var row models.GoogleOAuthToken
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &TokenSet{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Scope:        row.Scope,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (s *gormTokenStore) SaveTokens(ctx context.Context, userID int, tokens *TokenSet) error {
	var row models.GoogleOAuthToken
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row.UserID = userID
	row.AccessToken = tokens.AccessToken
	row.RefreshToken = tokens.RefreshToken
	row.TokenType = tokens.TokenType
	row.Scope = tokens.Scope
	row.ExpiresAt = tokens.ExpiresAt

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *gormTokenStore) DeleteTokens(ctx context.Context, userID int) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.GoogleOAuthToken{}).Error
}

// MemoryTokenStore is an in-memory TokenStore for tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[int]TokenSet
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[int]TokenSet)}
}

func (s *MemoryTokenStore) LoadTokens(ctx context.Context, userID int) (*TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, ok := s.tokens[userID]
	if !ok {
		return nil, nil
	}
	copied := tokens
	return &copied, nil
}

func (s *MemoryTokenStore) SaveTokens(ctx context.Context, userID int, tokens *TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = *tokens
	return nil
}

func (s *MemoryTokenStore) DeleteTokens(ctx context.Context, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}
