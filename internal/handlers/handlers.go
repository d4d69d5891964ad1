package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/likhity/photohunter-backend/internal/config"
	"github.com/likhity/photohunter-backend/internal/leaderboard"
	"github.com/likhity/photohunter-backend/internal/storage"
	"github.com/likhity/photohunter-backend/internal/submission"
)

// Submitter is the submission pipeline as the HTTP layer sees it.
type Submitter interface {
	Submit(ctx context.Context, userID, challengeID, filename string, payload []byte) (*submission.Result, error)
}

// BlobStore is the object-store surface the HTTP layer needs: uploads
// for challenge reference images, presigning for read URLs.
type BlobStore interface {
	Upload(ctx context.Context, payload []byte, folder, extension string) (string, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	ExtractKey(url string) string
}

type Handler struct {
	DB           *gorm.DB
	Orchestrator Submitter
	Gateway      BlobStore
	Local        *storage.LocalStore
	Board        *leaderboard.Board
	JWTSecret    string
	TokenTTL     time.Duration
	BaseURL      string
	Logger       zerolog.Logger
}

func New(db *gorm.DB, orchestrator Submitter, gateway BlobStore, local *storage.LocalStore, board *leaderboard.Board, cfg *config.Config, logger zerolog.Logger) Handler {
	return Handler{
		DB:           db,
		Orchestrator: orchestrator,
		Gateway:      gateway,
		Local:        local,
		Board:        board,
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
		BaseURL:      cfg.Server.BaseURL,
		Logger:       logger,
	}
}

// readTTL is the validity window for signed URLs handed to clients on
// read paths, as opposed to the tighter comparator-facing window.
const readTTL = time.Hour

// signedImageURL converts a stored durable URL into something the
// client can fetch: presigned for bucket objects, absolute for local
// media, unchanged otherwise. Falls back to the durable URL when
// presigning fails.
func (h *Handler) signedImageURL(ctx context.Context, url string) string {
	if url == "" {
		return url
	}
	if h.Gateway != nil {
		if key := h.Gateway.ExtractKey(url); key != "" {
			signed, err := h.Gateway.Presign(ctx, key, readTTL)
			if err == nil {
				return signed
			}
			h.Logger.Warn().Err(err).Str("key", key).Msg("presign for read failed")
		}
	}
	if h.Local != nil && h.Local.IsLocal(url) {
		return h.BaseURL + url
	}
	return url
}
