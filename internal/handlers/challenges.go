package handlers

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/likhity/photohunter-backend/internal/models"
	"github.com/likhity/photohunter-backend/internal/storage"
	"github.com/likhity/photohunter-backend/internal/submission"
)

type CreateChallengeRequest struct {
	Name           string  `form:"name" json:"name" binding:"required"`
	Description    string  `form:"description" json:"description" binding:"required"`
	Latitude       float64 `form:"latitude" json:"latitude" binding:"required"`
	Longitude      float64 `form:"longitude" json:"longitude" binding:"required"`
	ReferenceImage string  `form:"reference_image" json:"reference_image"`
	Difficulty     float64 `form:"difficulty" json:"difficulty"`
	Hint           string  `form:"hint" json:"hint"`
}

type UpdateChallengeRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Difficulty  *float64 `json:"difficulty"`
	Hint        *string  `json:"hint"`
	IsActive    *bool    `json:"is_active"`
}

func (h *Handler) ListChallengesHandler(c *gin.Context) {
	query := h.DB.Where("is_active = ?", true)

	if userGenerated := c.Query("user_generated"); userGenerated != "" {
		query = query.Where("is_user_generated = ?", userGenerated == "true")
	}
	if createdBy := c.Query("created_by"); createdBy != "" {
		query = query.Where("created_by_id = ?", createdBy)
	}
	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	var challenges []models.Challenge
	if err := query.Order("created_at desc").Find(&challenges).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenges"})
		return
	}
	c.JSON(http.StatusOK, h.serializeChallenges(c, challenges))
}

// CreateChallengeHandler accepts either a JSON body with a
// reference_image URL or a multipart form carrying the image itself as
// reference_image_file. An uploaded file is stored the same way
// submitted photos are: bucket first, local media when the bucket
// rejects it.
func (h *Handler) CreateChallengeHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateChallengeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	referenceImage := req.ReferenceImage
	if fileHeader, ferr := c.FormFile("reference_image_file"); ferr == nil {
		if referenceImage != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provide either reference_image_file or reference_image, not both"})
			return
		}

		extension, ok := submission.ImageExtension(fileHeader.Filename)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"reference_image_file": "unsupported image format, allowed: jpg, jpeg, png, gif, webp"}})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"reference_image_file": "could not read uploaded file"}})
			return
		}
		payload, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{"reference_image_file": "could not read uploaded file"}})
			return
		}

		url, err := h.storeReferenceImage(c.Request.Context(), payload, extension)
		if err != nil {
			h.Logger.Error().Err(err).Msg("failed to store reference image")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store reference image"})
			return
		}
		referenceImage = url
	}

	challenge := models.Challenge{
		Name:            req.Name,
		Description:     req.Description,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		ReferenceImage:  referenceImage,
		Difficulty:      req.Difficulty,
		Hint:            req.Hint,
		CreatedByID:     userID,
		IsUserGenerated: true,
		IsActive:        true,
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&challenge).Error; err != nil {
			return err
		}
		profile := models.UserProfile{UserID: userID}
		if err := tx.Where(models.UserProfile{UserID: userID}).FirstOrCreate(&profile).Error; err != nil {
			return err
		}
		return tx.Model(&models.UserProfile{}).
			Where("user_id = ?", userID).
			UpdateColumn("total_created", gorm.Expr("total_created + ?", 1)).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}
	c.JSON(http.StatusCreated, h.serializeChallenge(c, challenge))
}

func (h *Handler) ChallengeDetailHandler(c *gin.Context) {
	var challenge models.Challenge
	err := h.DB.Where("id = ? AND is_active = ?", c.Param("id"), true).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenge"})
		return
	}
	c.JSON(http.StatusOK, h.serializeChallenge(c, challenge))
}

// storeReferenceImage mirrors the submission pipeline's persist step
// for the challenge side: the payload is a complete in-memory copy, and
// a bucket rejection falls back to local media rather than failing the
// request.
func (h *Handler) storeReferenceImage(ctx context.Context, payload []byte, extension string) (string, error) {
	if h.Gateway != nil {
		url, err := h.Gateway.Upload(ctx, payload, "challenges", extension)
		if err == nil {
			return url, nil
		}
		var storageErr *storage.StorageError
		if !errors.As(err, &storageErr) {
			return "", err
		}
		h.Logger.Warn().Err(err).Msg("object store rejected reference image, falling back to local media storage")
	}
	return h.Local.Save(payload, "challenges", extension)
}

func (h *Handler) UpdateChallengeHandler(c *gin.Context) {
	var challenge models.Challenge
	err := h.DB.Where("id = ? AND is_active = ?", c.Param("id"), true).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenge"})
		return
	}

	var req UpdateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		challenge.Name = *req.Name
	}
	if req.Description != nil {
		challenge.Description = *req.Description
	}
	if req.Latitude != nil {
		challenge.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		challenge.Longitude = *req.Longitude
	}
	if req.Difficulty != nil {
		challenge.Difficulty = *req.Difficulty
	}
	if req.Hint != nil {
		challenge.Hint = *req.Hint
	}
	if req.IsActive != nil {
		challenge.IsActive = *req.IsActive
	}

	if err := h.DB.Save(&challenge).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update challenge"})
		return
	}
	c.JSON(http.StatusOK, h.serializeChallenge(c, challenge))
}

func (h *Handler) DeleteChallengeHandler(c *gin.Context) {
	var challenge models.Challenge
	err := h.DB.Where("id = ? AND is_active = ?", c.Param("id"), true).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenge"})
		return
	}

	if err := h.DB.Delete(&challenge).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete challenge"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadReferenceImageHandler redirects to a URL the client can fetch
// the reference image from, signed for bucket objects.
func (h *Handler) DownloadReferenceImageHandler(c *gin.Context) {
	var challenge models.Challenge
	err := h.DB.Where("id = ? AND is_active = ?", c.Param("id"), true).First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenge"})
		return
	}
	if challenge.ReferenceImage == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Challenge has no reference image"})
		return
	}
	c.Redirect(http.StatusFound, h.signedImageURL(c.Request.Context(), challenge.ReferenceImage))
}

func (h *Handler) MyChallengesHandler(c *gin.Context) {
	userID := c.GetString("user_id")

	var challenges []models.Challenge
	err := h.DB.Where("created_by_id = ? AND is_active = ?", userID, true).
		Order("created_at desc").Find(&challenges).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenges"})
		return
	}
	c.JSON(http.StatusOK, h.serializeChallenges(c, challenges))
}

// NearbyChallengesHandler does a bounding-box search around a point.
// Rough conversion: one degree of latitude is about 111 km.
func (h *Handler) NearbyChallengesHandler(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng parameters are required"})
		return
	}
	radius := 10.0
	if raw := c.Query("radius"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid radius value"})
			return
		}
		radius = parsed
	}

	latRange := radius / 111.0
	lngRange := radius / (111.0 * math.Max(math.Abs(lat), 0.1))

	var challenges []models.Challenge
	err := h.DB.Where("is_active = ?", true).
		Where("latitude BETWEEN ? AND ?", lat-latRange, lat+latRange).
		Where("longitude BETWEEN ? AND ?", lng-lngRange, lng+lngRange).
		Order("created_at desc").Find(&challenges).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch challenges"})
		return
	}
	c.JSON(http.StatusOK, h.serializeChallenges(c, challenges))
}

// challengeView is the API shape of a Challenge: the reference image
// goes out as a signed read URL, never as the raw bucket URL.
type challengeView struct {
	models.Challenge
	ReferenceImage string `json:"reference_image"`
}

func (h *Handler) serializeChallenge(c *gin.Context, challenge models.Challenge) challengeView {
	return challengeView{
		Challenge:      challenge,
		ReferenceImage: h.signedImageURL(c.Request.Context(), challenge.ReferenceImage),
	}
}

func (h *Handler) serializeChallenges(c *gin.Context, challenges []models.Challenge) []challengeView {
	views := make([]challengeView, 0, len(challenges))
	for _, ch := range challenges {
		views = append(views, h.serializeChallenge(c, ch))
	}
	return views
}
