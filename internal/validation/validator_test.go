package validation

import (
	"strings"
	"testing"

	"github.com/devrev/edgecdn/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"plain file", "index.html", false},
		{"nested path", "img/logo.png", false},
		{"dotfile", ".well-known/x", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd", true},
		{"parent traversal", "../secret", true},
		{"embedded traversal", "a/../../b", true},
		{"double slash alias", "a//b", true},
		{"trailing slash alias", "a/b/", true},
		{"current dir alias", "./a", true},
		{"nul byte", "a\x00b", true},
		{"too long", strings.Repeat("k", MaxKeySize+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrCodeInvalidArgument))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
