package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"site-analytics-api/config"
	"site-analytics-api/models"
	"site-analytics-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateImportRequest struct {
	SiteID     uint64 `json:"site_id" binding:"required"`
	PropertyID string `json:"property_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	Format     string `json:"format" binding:"required"`
	BatchSize  int64  `json:"batch_size"`
	MaxRetries int    `json:"max_retries"`
}

// newImportServices builds the job manager and the worker service the way
// request handlers use them, on the shared database connection.
func newImportServices() (*services.ImportJobService, *services.AnalyticsImportService) {
	jobs := services.NewImportJobService(services.NewImportJobStore(nil))
	oauth := services.NewGoogleOAuthService(config.LoadGoogleOAuthConfig(), nil)
	importer := services.NewAnalyticsImportService(
		jobs,
		services.NewGA4Client(nil),
		oauth,
		services.NewTokenStore(nil),
		services.NewHistoricalStorage(nil),
		nil,
	)
	return jobs, importer
}

// respondImportError maps service errors onto HTTP statuses.
func respondImportError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		conflictErr   *services.ConflictError
		notFoundErr   *services.NotFoundError
		stateErr      *services.InvalidStateError
	)

	switch {
	case errors.Is(err, services.ErrMaxRetriesExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

// loadOwnedSite fetches the site and enforces that the caller owns it.
// Writes the error response itself and returns false when the caller may
// not proceed.
func loadOwnedSite(c *gin.Context, siteID uint64) (*models.Site, bool) {
	userID := c.GetInt("userID")

	var site models.Site
	if err := config.DB.Where("site_id = ? AND deleted_at IS NULL", siteID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "site not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return nil, false
	}

	if site.UserID != userID && c.GetInt("roleID") != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "site belongs to another user"})
		return nil, false
	}
	return &site, true
}

// loadOwnedJob fetches the job and enforces site ownership through the
// job's site.
func loadOwnedJob(c *gin.Context, jobs *services.ImportJobService, jobID string) (*models.ImportJob, bool) {
	job, err := jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondImportError(c, err)
		return nil, false
	}
	if job == nil {
		respondImportError(c, &services.NotFoundError{Kind: "import job", ID: jobID})
		return nil, false
	}
	if _, ok := loadOwnedSite(c, job.SiteID); !ok {
		return nil, false
	}
	return job, true
}

// POST /api/v1/imports
func CreateImport(c *gin.Context) {
	var req CreateImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	req.Format = strings.ToLower(strings.TrimSpace(req.Format))

	if _, ok := loadOwnedSite(c, req.SiteID); !ok {
		return
	}

	userID := c.GetInt("userID")
	jobs, importer := newImportServices()

	// Ask the reporting API for the row count up front so progress has a
	// denominator. A failed estimate is not fatal; the job still runs and
	// reports batch counts.
	estimated, err := importer.EstimateTotalRows(c.Request.Context(), userID, req.PropertyID, req.StartDate, req.EndDate)
	if err != nil {
		log.Printf("row estimate failed for property %s: %v", req.PropertyID, err)
		estimated = 0
	}

	job, err := jobs.CreateJob(c.Request.Context(), &services.CreateJobInput{
		SiteID:        req.SiteID,
		PropertyID:    req.PropertyID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Format:        req.Format,
		EstimatedRows: estimated,
		BatchSize:     req.BatchSize,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		respondImportError(c, err)
		return
	}

	go func() {
		if err := importer.Run(context.Background(), userID, job.ID); err != nil {
			log.Printf("import job %s finished with error: %v", job.ID, err)
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"success": true, "job": job})
}

// GET /api/v1/imports?site_id=123
func ListImports(c *gin.Context) {
	siteIDStr := strings.TrimSpace(c.Query("site_id"))
	if siteIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing site_id"})
		return
	}
	siteID, err := strconv.ParseUint(siteIDStr, 10, 64)
	if err != nil || siteID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid site_id"})
		return
	}

	if _, ok := loadOwnedSite(c, siteID); !ok {
		return
	}

	jobs, _ := newImportServices()
	list, err := jobs.ListJobsForSite(c.Request.Context(), siteID)
	if err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": list})
}

// GET /api/v1/imports/:id
func GetImport(c *gin.Context) {
	jobs, _ := newImportServices()
	job, ok := loadOwnedJob(c, jobs, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

// DELETE /api/v1/imports/:id
//
// Cancels the job if it is still running, then removes the job and every
// stat row it imported.
func DeleteImport(c *gin.Context) {
	jobs, importer := newImportServices()
	job, ok := loadOwnedJob(c, jobs, c.Param("id"))
	if !ok {
		return
	}

	if job.Status.IsActive() {
		if _, err := jobs.CancelJob(c.Request.Context(), job.ID); err != nil {
			respondImportError(c, err)
			return
		}
	}

	if err := importer.DeleteImportedData(c.Request.Context(), job.ID); err != nil {
		respondImportError(c, err)
		return
	}
	if err := jobs.DeleteJob(c.Request.Context(), job.ID); err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Import deleted"})
}

// POST /api/v1/imports/:id/cancel
func CancelImport(c *gin.Context) {
	jobs, _ := newImportServices()
	if _, ok := loadOwnedJob(c, jobs, c.Param("id")); !ok {
		return
	}

	job, err := jobs.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

// POST /api/v1/imports/:id/retry
func RetryImport(c *gin.Context) {
	jobs, importer := newImportServices()
	if _, ok := loadOwnedJob(c, jobs, c.Param("id")); !ok {
		return
	}

	job, err := jobs.RetryFailedJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondImportError(c, err)
		return
	}

	userID := c.GetInt("userID")
	go func() {
		if err := importer.Run(context.Background(), userID, job.ID); err != nil {
			log.Printf("import job %s retry finished with error: %v", job.ID, err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

// POST /api/v1/admin/imports/cleanup?days=30
//
// Admin-only: removes finished jobs older than the retention window. The
// same operation the import-maintenance binary runs from cron.
func CleanupImports(c *gin.Context) {
	days := 30
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid days"})
			return
		}
		days = parsed
	}

	jobs, _ := newImportServices()
	deleted, err := jobs.CleanupOldJobs(c.Request.Context(), days)
	if err != nil {
		respondImportError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": deleted, "days": days})
}

// POST /api/v1/imports/:id/resume
func ResumeImport(c *gin.Context) {
	jobs, importer := newImportServices()
	if _, ok := loadOwnedJob(c, jobs, c.Param("id")); !ok {
		return
	}

	job, err := jobs.ResumeJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondImportError(c, err)
		return
	}

	userID := c.GetInt("userID")
	go func() {
		if err := importer.Run(context.Background(), userID, job.ID); err != nil {
			log.Printf("import job %s resume finished with error: %v", job.ID, err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}
