package stage

import (
	"errors"
	"fmt"

	"github.com/valpere/news2docx/internal/validator"
)

const (
	NameNormalize = "normalize"
	NameTranslate = "translate"
)

var (
	// ErrMisaligned means a translation did not return exactly one target
	// paragraph per source paragraph.
	ErrMisaligned = errors.New("paragraph count mismatch")
	// ErrEmpty means there was nothing left to process after cleaning.
	ErrEmpty = errors.New("no content")
	// ErrWrongLanguage is returned when a reply is not in the target language.
	ErrWrongLanguage = validator.ErrWrongLanguage
)

// CountError reports the paragraph counts of a misaligned reply. It matches
// ErrMisaligned with errors.Is.
type CountError struct {
	Want int
	Got  int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("%v: want %d paragraphs, got %d", ErrMisaligned, e.Want, e.Got)
}

func (e *CountError) Is(target error) bool {
	return target == ErrMisaligned
}

// Error is a failed stage. It unwraps to the last cause, typically a
// *selector.AllFailedError.
type Error struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
