package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/likhity/photohunter-backend/internal/models"
)

// completionView overrides the stored durable URL with a signed read
// URL, matching what clients can actually fetch.
type completionView struct {
	models.Completion
	SubmittedImage string `json:"submitted_image"`
}

// CompletionsHandler lists the current user's completions, newest first.
func (h *Handler) CompletionsHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	var completions []models.Completion
	err := h.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&completions).Error
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch completions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch completions"})
		return
	}

	views := make([]completionView, 0, len(completions))
	for _, completion := range completions {
		views = append(views, completionView{
			Completion:     completion,
			SubmittedImage: h.signedImageURL(c.Request.Context(), completion.SubmittedImage),
		})
	}
	c.JSON(http.StatusOK, gin.H{"completions": views})
}
