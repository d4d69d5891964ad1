package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/likhity/photohunter-backend/internal/submission"
)

// SubmitPhotoHandler accepts a multipart photo submission and runs it
// through the validation pipeline. 200 means the verdict rejected the
// photo and nothing was persisted; 201 means the completion committed.
func (h *Handler) SubmitPhotoHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	challengeID := c.PostForm("challenge_id")
	if _, err := uuid.Parse(challengeID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"challenge_id": "must be a valid UUID"}})
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"photo": "an image file is required"}})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"photo": "could not read uploaded file"}})
		return
	}
	defer file.Close()

	// Buffer the whole payload up front: it gets uploaded, possibly
	// re-uploaded without an ACL, and possibly embedded in the
	// comparator request.
	payload, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"photo": "could not read uploaded file"}})
		return
	}

	result, err := h.Orchestrator.Submit(c.Request.Context(), userID, challengeID, fileHeader.Filename, payload)
	if err != nil {
		switch {
		case errors.Is(err, submission.ErrChallengeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found or inactive"})
		case errors.Is(err, submission.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"photo": "unsupported image format, allowed: jpg, jpeg, png, gif, webp"}})
		case errors.Is(err, submission.ErrValidationConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "A concurrent submission for this challenge was already recorded"})
		default:
			h.Logger.Error().Err(err).Str("challenge_id", challengeID).Msg("photo submission failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store submitted photo"})
		}
		return
	}

	if result.Completion == nil {
		c.JSON(http.StatusOK, gin.H{"validation": result.Validation})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"completion": result.Completion,
		"validation": result.Validation,
	})
}
