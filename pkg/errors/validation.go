package errors

import (
	"strings"
	"unicode"
)

// Limits for user-supplied text.
const (
	MaxTitleLength       = 512
	MaxMetadataKeyLength = 64
	MaxQueryLength       = 256
)

// ValidateTitle validates a block or entity title.
//
// The validation rules are intentionally conservative:
//   - No control characters (tabs and newlines included)
//   - Maximum length of 512 bytes
//
// Empty titles are allowed; blocks fall back to a kind-derived label.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLength {
		return New(ErrCodeInvalidInput, "title too long (max %d characters)", MaxTitleLength)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "title contains invalid control characters")
		}
	}
	return nil
}

// ValidateMetadataKey validates a block metadata key.
// Keys are short identifiers: letters, digits, '_', '-' and '.'.
func ValidateMetadataKey(key string) error {
	if key == "" {
		return New(ErrCodeInvalidInput, "metadata key cannot be empty")
	}
	if len(key) > MaxMetadataKeyLength {
		return New(ErrCodeInvalidInput, "metadata key too long (max %d characters)", MaxMetadataKeyLength)
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("_-.", r) {
			return New(ErrCodeInvalidInput, "metadata key contains invalid character %q", r)
		}
	}
	return nil
}

// ValidateQuery validates an entity search query. Empty queries are allowed
// and match everything.
func ValidateQuery(query string) error {
	if len(query) > MaxQueryLength {
		return New(ErrCodeInvalidInput, "query too long (max %d characters)", MaxQueryLength)
	}
	if strings.ContainsRune(query, '\x00') {
		return New(ErrCodeInvalidInput, "query contains a null byte")
	}
	return nil
}
