package config

import "os"

// GoogleOAuthConfig holds the credentials for the Google OAuth integration.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// LoadGoogleOAuthConfig reads the Google OAuth credentials from the environment.
func LoadGoogleOAuthConfig() GoogleOAuthConfig {
	return GoogleOAuthConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
	}
}

// IsConfigured reports whether the required credentials are present.
func (c GoogleOAuthConfig) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
