package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	migrationdomain "github.com/smallbiznis/rewardly/internal/ratiomigration/domain"
)

type startMigrationRequest struct {
	Rates     map[string]int64 `json:"rates"`
	BatchSize int              `json:"batch_size"`
}

// @Summary      Start Ratio Migration
// @Description  Backup the ledger and rewrite it under new role rates
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  startMigrationRequest  true  "Start Migration Request"
// @Success      200  {object}  migrationdomain.RatioMigration
// @Router       /admin/migrations [post]
func (s *Server) StartRatioMigration(c *gin.Context) {
	var req startMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	migration, err := s.migrationSvc.Start(c.Request.Context(), migrationdomain.StartRequest{
		Rates:     req.Rates,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		if migration == nil {
			AbortWithError(c, err)
			return
		}
		// The record survives the failure so the operator can inspect
		// and resume or roll back.
		c.JSON(http.StatusOK, gin.H{"data": migration, "error": gin.H{"code": err.Error()}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": migration})
}

// @Summary      Get Ratio Migration
// @Description  Migration progress plus verification mismatches
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "Migration ID"
// @Success      200  {object}  migrationdomain.Progress
// @Router       /admin/migrations/{id} [get]
func (s *Server) GetRatioMigration(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_migration_id", "invalid migration id"))
		return
	}

	progress, err := s.migrationSvc.Status(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

// @Summary      Resume Ratio Migration
// @Description  Continue an interrupted migration from its cursor
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "Migration ID"
// @Success      200  {object}  migrationdomain.RatioMigration
// @Router       /admin/migrations/{id}/resume [post]
func (s *Server) ResumeRatioMigration(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_migration_id", "invalid migration id"))
		return
	}

	migration, err := s.migrationSvc.Resume(c.Request.Context(), id)
	if err != nil {
		if migration == nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": migration, "error": gin.H{"code": err.Error()}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": migration})
}

// @Summary      Rollback Ratio Migration
// @Description  Restore the ledger from the migration backup
// @Tags         admin
// @Produce      json
// @Param        id   path      string  true  "Migration ID"
// @Success      200  {object}  migrationdomain.RatioMigration
// @Router       /admin/migrations/{id}/rollback [post]
func (s *Server) RollbackRatioMigration(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_migration_id", "invalid migration id"))
		return
	}

	migration, err := s.migrationSvc.Rollback(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": migration})
}
