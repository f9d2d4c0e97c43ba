package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"site-analytics-api/config"
	"site-analytics-api/services"

	"github.com/gin-gonic/gin"
)

type GoogleCallbackRequest struct {
	Code string `json:"code" binding:"required"`
}

func newGoogleServices() (*services.GoogleOAuthService, services.TokenStore) {
	oauth := services.NewGoogleOAuthService(config.LoadGoogleOAuthConfig(), nil)
	return oauth, services.NewTokenStore(nil)
}

// GET /api/v1/integrations/google/connect
//
// Returns the consent URL the frontend should redirect the user to. The
// state parameter carries the user id so the callback can associate the
// resulting tokens.
func GoogleConnect(c *gin.Context) {
	cfg := config.LoadGoogleOAuthConfig()
	if !cfg.IsConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "google integration is not configured"})
		return
	}

	oauth, _ := newGoogleServices()
	state := strconv.Itoa(c.GetInt("userID"))

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"auth_url": oauth.GenerateAuthURL(state),
	})
}

// POST /api/v1/integrations/google/callback
//
// The frontend posts the authorization code it received from Google's
// redirect. We exchange it, check the granted scope, and store the tokens
// for the authenticated user.
func GoogleCallback(c *gin.Context) {
	var req GoogleCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing authorization code"})
		return
	}

	oauth, tokenStore := newGoogleServices()
	tokens, err := oauth.ExchangeCodeForTokens(c.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}

	if tokens.Scope != "" && !services.ValidateScope(tokens.Scope) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "granted scope does not include analytics readonly access",
		})
		return
	}

	userID := c.GetInt("userID")
	if err := tokenStore.SaveTokens(c.Request.Context(), userID, tokens); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Google Analytics connected",
		"expires_at": tokens.ExpiresAt,
	})
}

// GET /api/v1/integrations/google/status
func GoogleStatus(c *gin.Context) {
	_, tokenStore := newGoogleServices()

	tokens, err := tokenStore.LoadTokens(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if tokens == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "connected": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"connected":  true,
		"expires_at": tokens.ExpiresAt,
		"expired":    services.IsTokenExpired(tokens.ExpiresAt),
		"scope":      tokens.Scope,
	})
}

// DELETE /api/v1/integrations/google
//
// Revokes the tokens at Google (best effort) and forgets them locally.
func GoogleDisconnect(c *gin.Context) {
	oauth, tokenStore := newGoogleServices()
	userID := c.GetInt("userID")

	tokens, err := tokenStore.LoadTokens(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "google analytics account is not connected"})
		return
	}

	revoked := oauth.RevokeToken(c.Request.Context(), tokens.RefreshToken)

	if err := tokenStore.DeleteTokens(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"revoked": revoked,
		"message": "Google Analytics disconnected",
	})
}

// GET /api/v1/integrations/google/properties
func GoogleProperties(c *gin.Context) {
	_, importer := newImportServices()

	properties, err := importer.ListProperties(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "properties": properties})
}

// GET /api/v1/integrations/google/preview?property_id=properties/123&start_date=2024-01-01&end_date=2024-01-31
func GooglePreview(c *gin.Context) {
	propertyID := strings.TrimSpace(c.Query("property_id"))
	startDate := strings.TrimSpace(c.Query("start_date"))
	endDate := strings.TrimSpace(c.Query("end_date"))
	if propertyID == "" || startDate == "" || endDate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing property_id, start_date or end_date"})
		return
	}
	if !services.ValidatePropertyID(propertyID) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid property_id"})
		return
	}

	maxResults := int64(100)
	if raw := strings.TrimSpace(c.Query("max_results")); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			maxResults = n
		}
	}

	_, importer := newImportServices()
	report, err := importer.PreviewTopPages(c.Request.Context(), c.GetInt("userID"), propertyID, startDate, endDate, maxResults)
	if err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}
