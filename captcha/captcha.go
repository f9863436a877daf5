// Package captcha produces the image challenges new members must solve.
package captcha

import (
	"bytes"
	"fmt"

	img "github.com/steambap/captcha"

	"gatekeeper/model"
)

// Challenge is one generated captcha: the rendered image and the answer the
// member owes.
type Challenge struct {
	Image  []byte
	Answer string
}

// Generator renders challenge images. Difficulty ranges 1-5, mode is one of
// the model.CaptchaMode* char sets.
type Generator interface {
	Generate(difficulty int, mode string) (Challenge, error)
}

const (
	answerLength = 4
	imageWidth   = 280
	imageHeight  = 120
)

var charPresets = map[string]string{
	model.CaptchaModeDigits: "0123456789",
	model.CaptchaModeHex:    "0123456789ABCDEF",
	model.CaptchaModeASCII:  "23456789ABCDEFGHJKLMNPRSTUVWXYZ",
}

// ImageGenerator renders 4-character captchas; difficulty drives the amount
// of noise and curve clutter.
type ImageGenerator struct{}

func NewImageGenerator() *ImageGenerator { return &ImageGenerator{} }

func (g *ImageGenerator) Generate(difficulty int, mode string) (Challenge, error) {
	if difficulty < model.MinCaptchaDifficulty {
		difficulty = model.MinCaptchaDifficulty
	}
	if difficulty > model.MaxCaptchaDifficulty {
		difficulty = model.MaxCaptchaDifficulty
	}
	preset, ok := charPresets[mode]
	if !ok {
		preset = charPresets[model.CaptchaModeDigits]
	}
	data, err := img.New(imageWidth, imageHeight, func(o *img.Options) {
		o.CharPreset = preset
		o.TextLength = answerLength
		o.CurveNumber = difficulty
		o.Noise = float64(difficulty)
	})
	if err != nil {
		return Challenge{}, fmt.Errorf("render captcha: %w", err)
	}
	var buf bytes.Buffer
	if err := data.WriteImage(&buf); err != nil {
		return Challenge{}, fmt.Errorf("encode captcha: %w", err)
	}
	return Challenge{Image: buf.Bytes(), Answer: data.Text}, nil
}
