package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/models"
	appErrors "github.com/wardenhq/warden/pkg/errors"
	"github.com/wardenhq/warden/pkg/response"
)

// NotificationHandler lets accounts read and acknowledge the notices
// other flows leave for them, such as impersonation and share alerts.
type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	query := h.db.WithContext(requestContext(c)).
		Where("user_name = ?", name).
		Order("created_at DESC")
	if c.Query("unread") != "" {
		query = query.Where("is_read = ?", false)
	}

	var items []models.Notification
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	now := time.Now()
	result := h.db.WithContext(requestContext(c)).Model(&models.Notification{}).
		Where("id = ? AND user_name = ?", id, name).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	if result.RowsAffected == 0 {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// POST /api/notifications/read_all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	now := time.Now()
	err := h.db.WithContext(requestContext(c)).Model(&models.Notification{}).
		Where("user_name = ? AND is_read = ?", name, false).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	name := middleware.CurrentUser(c)
	if name == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	result := h.db.WithContext(requestContext(c)).
		Where("id = ? AND user_name = ?", id, name).
		Delete(&models.Notification{})
	if result.Error != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}
	if result.RowsAffected == 0 {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
