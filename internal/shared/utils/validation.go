// Package utils holds input validation shared by the API handlers.
package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Size limits (in bytes)
const (
	MaxSourceSize = 5 * 1024 * 1024 // 5MB - inline script source
	MaxHTMLSize   = 2 * 1024 * 1024 // 2MB - page submitted for link detection
)

// String length limits
const (
	MaxIDLength  = 128
	MaxURLLength = 8192
)

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an ID field
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateURL checks that value is an absolute URL with one of schemes
func ValidateURL(value, fieldName string, required bool, schemes ...string) error {
	if err := ValidateString(value, fieldName, 1, MaxURLLength, required); err != nil {
		return err
	}
	if value == "" {
		return nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL", fieldName)
	}
	if !u.IsAbs() {
		return fmt.Errorf("%s must be an absolute URL", fieldName)
	}
	if len(schemes) > 0 && !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%s scheme must be one of %s", fieldName, strings.Join(schemes, ", "))
	}
	return nil
}

// ValidateSize checks that a payload of size bytes is within max
func ValidateSize(size int, fieldName string, max int) error {
	if size > max {
		return fmt.Errorf("%s size %d bytes exceeds maximum %d bytes", fieldName, size, max)
	}
	return nil
}
