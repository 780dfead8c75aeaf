package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxSymbolLength        = 12
	MaxTagLength           = 64
	MaxAccountNameLength   = 100
	MaxDescriptionLength   = 1024
)

var (
	accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 ._-]+$`)
	tagPattern         = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateAccountName checks an account display name: non-empty, bounded,
// and limited to letters, digits, spaces and light punctuation.
func ValidateAccountName(name string) error {
	if err := ValidateStringNotEmpty(name, "account name"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(name, MaxAccountNameLength, "account name"); err != nil {
		return err
	}
	if !accountNamePattern.MatchString(name) {
		return fmt.Errorf("%w: account name may contain only letters, numbers, spaces, dots, underscores and hyphens", ErrValidationFailed)
	}
	return nil
}

// ValidateTag checks one user-supplied tag.
func ValidateTag(tag string) error {
	if err := ValidateStringNotEmpty(tag, "tag"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(tag, MaxTagLength, "tag"); err != nil {
		return err
	}
	if !tagPattern.MatchString(tag) {
		return fmt.Errorf("%w: tag may contain only letters, numbers, dots, underscores and hyphens", ErrValidationFailed)
	}
	return nil
}
