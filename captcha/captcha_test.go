package captcha

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/model"
)

func TestGenerateDigitsMode(t *testing.T) {
	g := NewImageGenerator()

	ch, err := g.Generate(2, model.CaptchaModeDigits)
	require.NoError(t, err)

	assert.Len(t, ch.Answer, answerLength)
	for _, r := range ch.Answer {
		assert.Contains(t, charPresets[model.CaptchaModeDigits], string(r))
	}
	assert.NotEmpty(t, ch.Image)
	// PNG magic bytes.
	assert.True(t, strings.HasPrefix(string(ch.Image), "\x89PNG"))
}

func TestGenerateModeCharsets(t *testing.T) {
	g := NewImageGenerator()
	for mode, preset := range charPresets {
		ch, err := g.Generate(3, mode)
		require.NoError(t, err, mode)
		for _, r := range ch.Answer {
			assert.Contains(t, preset, string(r), mode)
		}
	}
}

func TestGenerateUnknownModeFallsBackToDigits(t *testing.T) {
	g := NewImageGenerator()

	ch, err := g.Generate(2, "emoji")
	require.NoError(t, err)
	for _, r := range ch.Answer {
		assert.Contains(t, charPresets[model.CaptchaModeDigits], string(r))
	}
}

func TestGenerateClampsDifficulty(t *testing.T) {
	g := NewImageGenerator()

	_, err := g.Generate(-3, model.CaptchaModeDigits)
	assert.NoError(t, err)
	_, err = g.Generate(99, model.CaptchaModeASCII)
	assert.NoError(t, err)
}
