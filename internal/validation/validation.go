package validation

import (
	"errors"
	"strings"
	"unicode"
)

// MaxCropRows bounds the prediction request; the local model answers one
// prompt at a time, so large tables would queue for minutes.
const MaxCropRows = 5

// MaxExpenseRows bounds a single expense batch.
const MaxExpenseRows = 5

// ErrLocationEmpty is returned when location is empty or whitespace-only after trim.
var ErrLocationEmpty = errors.New("location is required")

// ErrLocationTooLong is returned when location length exceeds the maximum.
var ErrLocationTooLong = errors.New("location too long")

// ErrLocationInvalidChars is returned when location contains disallowed characters.
var ErrLocationInvalidChars = errors.New("location contains invalid characters")

// ErrCropEmpty is returned for an empty crop name where one is required.
var ErrCropEmpty = errors.New("crop name is required")

// ErrCropInvalidChars is returned when a crop name contains disallowed characters.
var ErrCropInvalidChars = errors.New("crop name contains invalid characters")

// ErrAcresOutOfRange is returned for a non-positive or absurd acreage.
var ErrAcresOutOfRange = errors.New("acres must be between 0 and 10000")

// ErrTooManyRows is returned when a batch exceeds its row cap.
var ErrTooManyRows = errors.New("too many rows")

// ValidateLocation trims the input, enforces the length bound (maxLen in
// runes), and restricts to letters (Unicode), combining marks, digits, space,
// comma, hyphen. Marks must pass or Indic place names break: Devanagari vowel
// signs ("पुणे") are category Mn, not L.
// Returns the trimmed string or an error suitable for 400 responses.
// Normalization (e.g. lowercase) is left to the resolver.
func ValidateLocation(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrLocationEmpty
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrLocationTooLong
	}
	for _, c := range r {
		if !isAllowedLocationRune(c) {
			return "", ErrLocationInvalidChars
		}
	}
	return s, nil
}

// ValidateCrop checks one prediction row. Crop names allow letters, digits,
// space and hyphen; "rapeseed and mustard" style names pass as letters+space.
func ValidateCrop(crop string, acres float64) (string, error) {
	s := strings.TrimSpace(crop)
	if s == "" {
		return "", ErrCropEmpty
	}
	for _, c := range s {
		if !unicode.IsLetter(c) && !unicode.IsNumber(c) && c != ' ' && c != '-' {
			return "", ErrCropInvalidChars
		}
	}
	if acres <= 0 || acres > 10000 {
		return "", ErrAcresOutOfRange
	}
	return s, nil
}

// isAllowedLocationRune returns true for letters (Unicode), combining marks,
// digits, space, comma, hyphen.
func isAllowedLocationRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-':
		return true
	}
	return false
}
