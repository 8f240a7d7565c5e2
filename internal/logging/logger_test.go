package logging_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/paramctl/internal/logging"
)

// TestSecretRedaction verifies Secret values never print their contents
func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	secret := logging.Secret("super-secret-password")

	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", secret))
	assert.NotContains(t, fmt.Sprintf("value is %s", secret), "super-secret-password")
}

// TestRedactReplacesAllOccurrences verifies Redact scrubs every occurrence
func TestRedactReplacesAllOccurrences(t *testing.T) {
	t.Parallel()

	input := "password=hunter42 again hunter42"
	result := logging.Redact(input, []string{"hunter42"})

	assert.NotContains(t, result, "hunter42")
	assert.Equal(t, "password=[REDACTED] again [REDACTED]", result)
}

// TestRedactSkipsTrivialSecrets verifies very short values are left alone
// so common substrings don't get mangled
func TestRedactSkipsTrivialSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secrets []string
		input   string
		want    string
	}{
		{"short secret untouched", []string{"ab"}, "slab of text", "slab of text"},
		{"empty secret untouched", []string{""}, "anything", "anything"},
		{"long secret redacted", []string{"abcd"}, "has abcd inside", "has [REDACTED] inside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.Redact(tt.input, tt.secrets))
		})
	}
}

// TestLoggerLevels exercises the level methods; output goes to stderr so we
// only verify they do not panic with and without color
func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	for _, noColor := range []bool{true, false} {
		logger := logging.New(true, noColor)
		logger.Debug("debug %d", 1)
		logger.Info("info %s", "msg")
		logger.Warn("warn")
		logger.Error("error")

		logger.SetQuiet(true)
		logger.Info("suppressed")
	}
}
