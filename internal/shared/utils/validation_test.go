package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("us_01HZX3", "script_id", true))
	assert.Error(t, ValidateID("", "script_id", true))
	assert.NoError(t, ValidateID("", "script_id", false))
	assert.Error(t, ValidateID("../etc", "script_id", true))
	assert.Error(t, ValidateID(strings.Repeat("a", MaxIDLength+1), "script_id", true))
}

func TestValidateString(t *testing.T) {
	assert.Error(t, ValidateString("a\x00b", "name", 0, 10, true))
	assert.Error(t, ValidateString("ab", "name", 3, 10, true))
	assert.NoError(t, ValidateString("héllo", "name", 1, 5, true))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"https://example.com/a.user.js", false},
		{"HTTP://example.com/", false},
		{"file:///tmp/a.user.js", true},
		{"/relative/a.user.js", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.value, "url", true, "http", "https")
		assert.Equal(t, tt.wantErr, err != nil, tt.value)
	}
	assert.NoError(t, ValidateURL("", "url", false))
}

func TestValidateSize(t *testing.T) {
	assert.NoError(t, ValidateSize(10, "source", 10))
	assert.Error(t, ValidateSize(11, "source", 10))
}
