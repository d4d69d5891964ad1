package submission

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/likhity/photohunter-backend/internal/ai"
	"github.com/likhity/photohunter-backend/internal/models"
	"github.com/likhity/photohunter-backend/internal/storage"
	"github.com/likhity/photohunter-backend/internal/validation"
)

var (
	// ErrChallengeNotFound covers both a missing and an inactive challenge.
	ErrChallengeNotFound = errors.New("challenge not found or inactive")
	// ErrUnsupportedFormat is raised before any I/O happens.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrValidationConflict means a concurrent submission won the
	// uniqueness race on (user, challenge).
	ErrValidationConflict = errors.New("conflicting submission for this challenge")
)

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// Gateway is the blob-store boundary the orchestrator drives.
type Gateway interface {
	Upload(ctx context.Context, payload []byte, folder, extension string) (string, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	ExtractKey(url string) string
	Delete(ctx context.Context, key string) bool
}

// Comparator is the external vision model boundary.
type Comparator interface {
	Compare(ctx context.Context, referenceURL, submittedURL, description string) (string, error)
	CompareBytes(ctx context.Context, referenceURL string, submitted []byte, extension, description string) (string, error)
}

// Counter receives the per-user completion increments, best-effort.
type Counter interface {
	Increment(ctx context.Context, userID string)
}

// Result is what a finished submission hands back to the HTTP layer.
// Completion is nil when the verdict rejected the photo.
type Result struct {
	Completion *models.Completion
	Validation validation.Verdict
}

// Orchestrator runs the submission pipeline: ingest, store (with the
// local fallback), compare, interpret, then commit or roll back against
// the ledger.
type Orchestrator struct {
	db         *gorm.DB
	store      Gateway
	local      *storage.LocalStore
	comparator Comparator
	counter    Counter
	baseURL    string
	presignTTL time.Duration
	logger     zerolog.Logger
}

func New(db *gorm.DB, store Gateway, local *storage.LocalStore, comparator Comparator, counter Counter, baseURL string, presignTTL time.Duration, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		db:         db,
		store:      store,
		local:      local,
		comparator: comparator,
		counter:    counter,
		baseURL:    baseURL,
		presignTTL: presignTTL,
		logger:     logger,
	}
}

// Submit runs one photo submission end to end. The payload must be the
// complete file contents; it is both uploaded and, for locally stored
// photos, embedded directly in the comparator request.
func (o *Orchestrator) Submit(ctx context.Context, userID, challengeID, filename string, payload []byte) (*Result, error) {
	var challenge models.Challenge
	err := o.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", challengeID, true).
		First(&challenge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}

	extension, ok := ImageExtension(filename)
	if !ok {
		return nil, ErrUnsupportedFormat
	}

	durableURL, storedLocally, err := o.persist(ctx, payload, extension)
	if err != nil {
		return nil, err
	}

	outcome := o.compare(ctx, &challenge, durableURL, storedLocally, payload, extension)
	verdict := sanitizeVerdict(outcome.verdict, map[string]string{
		outcome.referenceAccess: challenge.ReferenceImage,
		outcome.submittedAccess: durableURL,
	})
	prompt := ai.BuildPrompt(challenge.ReferenceImage, durableURL, challenge.Description)

	if !verdict.IsValid {
		o.cleanup(ctx, durableURL)
		return &Result{Validation: verdict}, nil
	}

	completion, counted, err := o.commit(ctx, userID, &challenge, durableURL, prompt, outcome.raw, verdict)
	if err != nil {
		// The upload has no owning row; drop it rather than orphan it.
		o.cleanup(ctx, durableURL)
		return nil, err
	}
	if counted && o.counter != nil {
		o.counter.Increment(ctx, userID)
	}

	return &Result{Completion: completion, Validation: verdict}, nil
}

// persist uploads the payload under the submissions namespace, falling
// back to local media storage when the object store fails outright.
// The fallback is a deliberate trade: a flaky bucket must not fail
// submissions, even though it can split media across two backends.
func (o *Orchestrator) persist(ctx context.Context, payload []byte, extension string) (string, bool, error) {
	if o.store != nil {
		url, err := o.store.Upload(ctx, payload, "submissions", extension)
		if err == nil {
			return url, false, nil
		}
		var storageErr *storage.StorageError
		if !errors.As(err, &storageErr) {
			return "", false, err
		}
		o.logger.Warn().Err(err).Msg("object store upload failed, falling back to local media storage")
	}

	url, err := o.local.Save(payload, "submissions", extension)
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// compareOutcome carries the verdict plus everything the commit path
// and the URL sanitizer need to know about the call.
type compareOutcome struct {
	verdict         validation.Verdict
	raw             string
	referenceAccess string
	submittedAccess string
}

// compare obtains access URLs both sides can actually fetch, consults
// the model and interprets its answer. Any comparator failure collapses
// into the fail-closed fallback verdict; it never surfaces to the caller.
func (o *Orchestrator) compare(ctx context.Context, challenge *models.Challenge, submittedURL string, storedLocally bool, payload []byte, extension string) compareOutcome {
	out := compareOutcome{
		referenceAccess: o.accessURL(ctx, challenge.ReferenceImage),
	}

	var err error
	if storedLocally {
		// A file on our disk has no URL the model can reach within the
		// presign window; embed the bytes instead.
		out.raw, err = o.comparator.CompareBytes(ctx, out.referenceAccess, payload, extension, challenge.Description)
	} else {
		out.submittedAccess = o.accessURL(ctx, submittedURL)
		out.raw, err = o.comparator.Compare(ctx, out.referenceAccess, out.submittedAccess, challenge.Description)
	}
	if err != nil {
		o.logger.Error().Err(err).Str("challenge_id", challenge.ID).Msg("comparator call failed")
		out.verdict = validation.FallbackVerdict()
		out.raw = "AI validation service unavailable"
		return out
	}
	out.verdict = validation.Interpret(out.raw)
	return out
}

// sanitizeVerdict replaces any time-limited access URL the model may
// have echoed back with its durable counterpart. Presigned links never
// leave the pipeline.
func sanitizeVerdict(v validation.Verdict, replacements map[string]string) validation.Verdict {
	replace := func(s string) string {
		for signed, durable := range replacements {
			if signed == "" || signed == durable {
				continue
			}
			s = strings.ReplaceAll(s, signed, durable)
		}
		return s
	}

	v.Notes = replace(v.Notes)
	for i, m := range v.KeyMatches {
		v.KeyMatches[i] = replace(m)
	}
	for i, d := range v.KeyDifferences {
		v.KeyDifferences[i] = replace(d)
	}
	return v
}

// accessURL converts a durable reference into something fetchable: a
// short-lived presigned URL for bucket objects, an absolute URL for
// local media, and the original URL for anything else.
func (o *Orchestrator) accessURL(ctx context.Context, url string) string {
	if url == "" {
		return url
	}
	if o.store != nil {
		if key := o.store.ExtractKey(url); key != "" {
			signed, err := o.store.Presign(ctx, key, o.presignTTL)
			if err != nil {
				o.logger.Warn().Err(err).Str("key", key).Msg("presign failed, using durable URL")
				return url
			}
			return signed
		}
	}
	if o.local.IsLocal(url) {
		return o.baseURL + url
	}
	return url
}

// commit runs the atomic accept path: lock or create the Completion,
// overwrite it from the verdict, upsert its ValidationRecord and bump
// the profile counter only on a first transition to valid. It reports
// whether the counter moved.
func (o *Orchestrator) commit(ctx context.Context, userID string, challenge *models.Challenge, durableURL, prompt, rawResponse string, verdict validation.Verdict) (*models.Completion, bool, error) {
	var completion models.Completion
	var previousImage string
	counted := false

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND challenge_id = ?", userID, challenge.ID).
			First(&completion).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			completion = models.Completion{
				UserID:          userID,
				ChallengeID:     challenge.ID,
				SubmittedImage:  durableURL,
				ValidationScore: verdict.SimilarityScore,
				IsValid:         true,
				ValidationNotes: verdict.Notes,
			}
			if err := tx.Create(&completion).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrValidationConflict
				}
				return err
			}
			counted = true
		case err != nil:
			return err
		default:
			previousImage = completion.SubmittedImage
			counted = !completion.IsValid
			completion.SubmittedImage = durableURL
			completion.ValidationScore = verdict.SimilarityScore
			completion.IsValid = true
			completion.ValidationNotes = verdict.Notes
			if err := tx.Save(&completion).Error; err != nil {
				return err
			}
		}

		if err := o.upsertValidationRecord(tx, &completion, challenge, durableURL, prompt, rawResponse, verdict); err != nil {
			return err
		}

		if counted {
			return o.bumpCompletions(tx, userID)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	// Only after the transaction holds: the replaced photo is now an
	// orphan and can go.
	if previousImage != "" && previousImage != durableURL {
		o.cleanup(ctx, previousImage)
	}

	return &completion, counted, nil
}

func (o *Orchestrator) upsertValidationRecord(tx *gorm.DB, completion *models.Completion, challenge *models.Challenge, durableURL, prompt, rawResponse string, verdict validation.Verdict) error {
	var record models.ValidationRecord
	err := tx.Where("completion_id = ?", completion.ID).First(&record).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record.CompletionID = completion.ID
	record.ReferenceImageURL = challenge.ReferenceImage
	record.SubmittedImageURL = durableURL
	record.SimilarityScore = verdict.SimilarityScore
	record.ConfidenceScore = verdict.ConfidenceScore
	record.ValidationPrompt = prompt
	record.AIResponse = rawResponse
	record.IsApproved = verdict.IsValid

	if record.ID == "" {
		return tx.Create(&record).Error
	}
	return tx.Save(&record).Error
}

func (o *Orchestrator) bumpCompletions(tx *gorm.DB, userID string) error {
	profile := models.UserProfile{UserID: userID}
	if err := tx.Where(models.UserProfile{UserID: userID}).FirstOrCreate(&profile).Error; err != nil {
		return err
	}
	return tx.Model(&models.UserProfile{}).
		Where("user_id = ?", userID).
		UpdateColumn("total_completions", gorm.Expr("total_completions + ?", 1)).Error
}

// cleanup drops a stored object best-effort; failures are logged only.
func (o *Orchestrator) cleanup(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if o.local.IsLocal(url) {
		o.local.Delete(url)
		return
	}
	if o.store == nil {
		return
	}
	if key := o.store.ExtractKey(url); key != "" {
		o.store.Delete(ctx, key)
	}
}

func extensionOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// ImageExtension returns the lowercased extension of filename and
// whether it is a supported image format. Challenge reference images
// follow the same allow-set as submitted photos.
func ImageExtension(filename string) (string, bool) {
	ext := extensionOf(filename)
	return ext, allowedExtensions[ext]
}
