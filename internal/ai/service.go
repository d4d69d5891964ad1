package ai

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/likhity/photohunter-backend/internal/config"
)

// ComparatorError wraps any transport, auth or timeout failure from the
// vision model. There is no retry here; the caller fails closed.
type ComparatorError struct {
	Cause error
}

func (e *ComparatorError) Error() string {
	return fmt.Sprintf("comparator call failed: %v", e.Cause)
}

func (e *ComparatorError) Unwrap() error { return e.Cause }

const instructionText = `You are an expert photo validation AI. Your task is to compare two images and determine if they show the same subject or location.

Please analyze both images and provide a detailed comparison. Consider:
1. Are they showing the same subject/location?
2. Are the architectural features, landmarks, or key elements the same?
3. Is the lighting, angle, or perspective similar enough to confirm it's the same place?
4. Are there any obvious differences that suggest they're different locations?`

const formatInstruction = `Respond in the following JSON format:
{
    "similarity_score": 0.85,
    "confidence_score": 0.92,
    "is_valid": true,
    "notes": "The images show the same architectural landmark with similar lighting and angle. The key features match the description perfectly.",
    "key_matches": ["Gothic architecture", "Stained glass windows", "Flying buttresses"],
    "key_differences": ["Slight difference in lighting", "Different time of day"]
}

Be strict but fair in your assessment. The photo should clearly show the same subject/location as the reference image.`

// BuildPrompt is the textual prompt persisted alongside each validation.
// The image parts travel separately in the request; this is the text the
// model sees around them.
func BuildPrompt(referenceRef, submittedRef, description string) string {
	return fmt.Sprintf("%s\n\nREFERENCE IMAGE: %s\nSUBMITTED IMAGE: %s\nPHOTO HUNT DESCRIPTION: %s\n\n%s",
		instructionText, referenceRef, submittedRef, description, formatInstruction)
}

// Service performs one synchronous comparison call against the vision
// model. No retry policy is applied here.
type Service struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewService(ctx context.Context, cfg config.GeminiConfig) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Service{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Compare asks the model whether the two fetchable images show the same
// subject, returning its raw textual response.
func (s *Service) Compare(ctx context.Context, referenceURL, submittedURL, description string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(instructionText),
		genai.NewPartFromURI(referenceURL, "image/jpeg"),
		genai.NewPartFromURI(submittedURL, "image/jpeg"),
		genai.NewPartFromText(fmt.Sprintf("PHOTO HUNT DESCRIPTION: %s\n\n%s", description, formatInstruction)),
	}
	return s.generate(ctx, parts)
}

// CompareBytes embeds the submitted image directly for the case where
// it has no URL the model could fetch.
func (s *Service) CompareBytes(ctx context.Context, referenceURL string, submitted []byte, extension, description string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(instructionText),
		genai.NewPartFromURI(referenceURL, "image/jpeg"),
		genai.NewPartFromBytes(submitted, "image/"+extension),
		genai.NewPartFromText(fmt.Sprintf("PHOTO HUNT DESCRIPTION: %s\n\n%s", description, formatInstruction)),
	}
	return s.generate(ctx, parts)
}

func (s *Service) generate(ctx context.Context, parts []*genai.Part) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.1)}

	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, cfg)
	if err != nil {
		return "", &ComparatorError{Cause: err}
	}

	text := result.Text()
	if text == "" {
		return "", &ComparatorError{Cause: fmt.Errorf("no text content in model response")}
	}
	return text, nil
}
