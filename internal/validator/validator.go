// Package validator checks that translated paragraphs are written in the
// expected target language.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/news2docx/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// ErrWrongLanguage is returned when the detected language differs from the
// expected one.
var ErrWrongLanguage = errors.New("wrong target language")

// Validator checks that a translation result is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator whose detector distinguishes between the given ISO
// 639-1 codes (typically the source and target language).
func New(isoCodes ...string) *Validator {
	return &Validator{det: detector.New(isoCodes...)}
}

// Check returns nil when text appears to be written in targetLang.
//
// Short texts and texts whose language cannot be determined pass. A mismatch
// wraps ErrWrongLanguage and names both codes.
func (v *Validator) Check(text, targetLang string) error {
	if v == nil || targetLang == "" {
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("translation is empty")
	}

	// Detector is unreliable for very short texts; skip validation.
	if len([]rune(text)) < minValidationLength {
		return nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return fmt.Errorf("%w: expected %s but detected %s", ErrWrongLanguage, targetLang, detected)
	}

	return nil
}
