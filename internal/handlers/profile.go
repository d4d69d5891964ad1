package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/likhity/photohunter-backend/internal/models"
)

func (h *Handler) ProfileHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	profile := models.UserProfile{UserID: userID}
	if err := h.DB.Where(models.UserProfile{UserID: userID}).FirstOrCreate(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                user.ID,
		"name":              user.Name,
		"email":             user.Email,
		"bio":               profile.Bio,
		"avatar":            h.signedImageURL(c.Request.Context(), profile.Avatar),
		"total_completions": profile.TotalCompletions,
		"total_created":     profile.TotalCreated,
		"joined_at":         user.CreatedAt,
	})
}

func (h *Handler) UpdateProfileHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		Bio *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	profile := models.UserProfile{UserID: userID}
	if err := h.DB.Where(models.UserProfile{UserID: userID}).FirstOrCreate(&profile).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}

	if req.Bio != nil {
		profile.Bio = *req.Bio
		if err := h.DB.Save(&profile).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}
	c.JSON(http.StatusOK, profile)
}
