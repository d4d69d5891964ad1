package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptCarriesAllContext(t *testing.T) {
	prompt := BuildPrompt(
		"https://media.photohunter.test/challenges/ref.jpg",
		"https://media.photohunter.test/submissions/new.jpg",
		"Find the cathedral on 5th street",
	)

	assert.Contains(t, prompt, "expert photo validation AI")
	assert.Contains(t, prompt, "REFERENCE IMAGE: https://media.photohunter.test/challenges/ref.jpg")
	assert.Contains(t, prompt, "SUBMITTED IMAGE: https://media.photohunter.test/submissions/new.jpg")
	assert.Contains(t, prompt, "PHOTO HUNT DESCRIPTION: Find the cathedral on 5th street")
	assert.Contains(t, prompt, `"similarity_score"`)
	assert.Contains(t, prompt, `"key_differences"`)
	assert.Contains(t, prompt, "Be strict but fair")
}
