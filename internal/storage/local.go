package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/likhity/photohunter-backend/internal/config"
)

// LocalStore writes media under a local directory and hands out URLs
// beneath the configured prefix. It exists as the documented fallback
// for submissions when the object store rejects an upload outright.
type LocalStore struct {
	root      string
	urlPrefix string
	logger    zerolog.Logger
}

func NewLocalStore(cfg config.MediaConfig, logger zerolog.Logger) *LocalStore {
	return &LocalStore{root: cfg.Root, urlPrefix: cfg.URLPrefix, logger: logger}
}

// Save writes the payload to <root>/<folder>/<uuid>.<extension> and
// returns the relative URL under the media prefix.
func (l *LocalStore) Save(payload []byte, folder, extension string) (string, error) {
	dir := filepath.Join(l.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	name := fmt.Sprintf("%s.%s", uuid.NewString(), extension)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}

	return l.urlPrefix + "/" + folder + "/" + name, nil
}

// IsLocal reports whether a stored URL refers to this media root.
func (l *LocalStore) IsLocal(url string) bool {
	return strings.HasPrefix(url, l.urlPrefix+"/")
}

// Delete removes a locally stored file, best-effort.
func (l *LocalStore) Delete(url string) bool {
	if !l.IsLocal(url) {
		return false
	}
	rel := strings.TrimPrefix(url, l.urlPrefix+"/")
	path := filepath.Join(l.root, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil {
		l.logger.Warn().Err(err).Str("path", path).Msg("failed to delete local media file")
		return false
	}
	return true
}
