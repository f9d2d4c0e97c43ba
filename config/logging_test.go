package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePathDefault(t *testing.T) {
	t.Setenv("LOG_FILE", "")
	assert.Equal(t, defaultLogFile, LogFilePath())
}

func TestLogFilePathEnvOverride(t *testing.T) {
	t.Setenv("LOG_FILE", "/var/log/analytics/api.log")
	assert.Equal(t, "/var/log/analytics/api.log", LogFilePath())
}
