package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"not null" json:"name"`
	PasswordHash string    `gorm:"column:password_hash" json:"-"`
	GoogleID     string    `gorm:"index" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type UserProfile struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string    `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Bio              string    `gorm:"type:text" json:"bio"`
	Avatar           string    `json:"avatar"`
	TotalCompletions uint      `json:"total_completions"`
	TotalCreated     uint      `json:"total_created"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (p *UserProfile) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Challenge is a geolocated photo-hunt target. The submission pipeline
// only ever reads challenges; creation lives in the challenge handlers.
type Challenge struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string    `gorm:"not null" json:"name"`
	Description     string    `gorm:"type:text" json:"description"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	ReferenceImage  string    `json:"reference_image"`
	Difficulty      float64   `json:"difficulty"`
	Hint            string    `gorm:"type:text" json:"hint"`
	CreatedByID     string    `gorm:"type:uuid;not null" json:"created_by"`
	IsUserGenerated bool      `gorm:"default:true" json:"is_user_generated"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	CreatedBy User `gorm:"foreignKey:CreatedByID" json:"-"`
}

func (c *Challenge) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Completion is one user's outcome for one challenge. The composite
// unique index is the authoritative guard against concurrent duplicate
// creates; a repeat valid submission overwrites the row in place.
type Completion struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_completions_user_challenge" json:"user_id"`
	ChallengeID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_completions_user_challenge" json:"challenge_id"`
	SubmittedImage  string    `json:"submitted_image"`
	ValidationScore float64   `json:"validation_score"`
	IsValid         bool      `json:"is_valid"`
	ValidationNotes string    `gorm:"type:text" json:"validation_notes"`
	CreatedAt       time.Time `json:"created_at"`

	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Challenge Challenge `gorm:"foreignKey:ChallengeID" json:"-"`
}

func (c *Completion) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ValidationRecord is the durable audit trail of the AI comparison behind
// an accepted Completion. Exactly one per completion; both image URLs are
// durable, never presigned.
type ValidationRecord struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	CompletionID      string    `gorm:"type:uuid;uniqueIndex;not null" json:"completion_id"`
	ReferenceImageURL string    `json:"reference_image_url"`
	SubmittedImageURL string    `json:"submitted_image_url"`
	SimilarityScore   float64   `json:"similarity_score"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ValidationPrompt  string    `gorm:"type:text" json:"validation_prompt"`
	AIResponse        string    `gorm:"type:text;column:ai_response" json:"ai_response"`
	IsApproved        bool      `json:"is_approved"`
	CreatedAt         time.Time `json:"created_at"`

	Completion Completion `gorm:"foreignKey:CompletionID" json:"-"`
}

func (v *ValidationRecord) BeforeCreate(_ *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
