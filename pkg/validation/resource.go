package validation

import (
	"fmt"
	"time"
	"unicode"
)

// MaxResourceIDLength caps resource identifiers so they fit the indexed
// column they are stored in.
const MaxResourceIDLength = 128

// ValidateResourceID validates an order identifier used as a lock key
func ValidateResourceID(id string) error {
	if id == "" {
		return fmt.Errorf("resource id cannot be empty")
	}

	if len(id) > MaxResourceIDLength {
		return fmt.Errorf("resource id too long: max %d characters, got %d", MaxResourceIDLength, len(id))
	}

	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("resource id contains whitespace or control characters")
		}
	}

	return nil
}

// ValidateIdentity validates a user or session identifier from a request header
func ValidateIdentity(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}

	if len(value) > MaxResourceIDLength {
		return fmt.Errorf("%s too long: max %d characters, got %d", name, MaxResourceIDLength, len(value))
	}

	return nil
}

// ValidateTTL checks a requested lock lifetime against the allowed ceiling.
// Lifetimes are stored with second resolution, so anything shorter than one
// second would expire the moment it was granted.
func ValidateTTL(ttl, max time.Duration) error {
	if ttl < time.Second {
		return fmt.Errorf("ttl must be at least one second, got %s", ttl)
	}

	if ttl > max {
		return fmt.Errorf("ttl %s exceeds maximum %s", ttl, max)
	}

	return nil
}
