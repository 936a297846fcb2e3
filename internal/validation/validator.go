package validation

import (
	"path"
	"strings"

	"github.com/devrev/edgecdn/internal/errors"
)

const (
	// MaxKeySize bounds a stored file's relative path
	MaxKeySize = 1024 // 1 KB
)

// Validator validates file keys before they touch local storage
type Validator struct {
	maxKeySize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize: MaxKeySize,
	}
}

// ValidateKey accepts keys verbatim but rejects any key that could escape the
// storage root or alias a different key on disk.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidKey(key, "key is required")
	}
	if len(key) > v.maxKeySize {
		return errors.InvalidKey(key, "key exceeds maximum size")
	}
	if strings.ContainsRune(key, 0) {
		return errors.InvalidKey(key, "key contains NUL byte")
	}
	if strings.HasPrefix(key, "/") {
		return errors.InvalidKey(key, "key must be relative")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return errors.InvalidKey(key, "key must not contain '..' segments")
		}
	}
	if path.Clean(key) != key {
		return errors.InvalidKey(key, "key is not in canonical form")
	}
	return nil
}
