package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// LeaderboardHandler returns the top completers from the redis board.
func (h *Handler) LeaderboardHandler(c *gin.Context) {
	if h.Board == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Leaderboard is not enabled"})
		return
	}

	limit := int64(10)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	entries, err := h.Board.Top(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch leaderboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
