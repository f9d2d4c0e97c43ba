package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateImportFormat(t *testing.T) {
	assert.True(t, ValidateImportFormat("json"))
	assert.True(t, ValidateImportFormat("csv"))
	assert.True(t, ValidateImportFormat(" JSON "))
	assert.False(t, ValidateImportFormat("xml"))
	assert.False(t, ValidateImportFormat(""))
}

func TestValidateDateRange(t *testing.T) {
	assert.Empty(t, ValidateDateRange("2024-01-01", "2024-03-31"))
	assert.Empty(t, ValidateDateRange("2024-01-01", "2024-01-01"))
	assert.NotEmpty(t, ValidateDateRange("2024-03-31", "2024-01-01"))
	assert.NotEmpty(t, ValidateDateRange("01/01/2024", "2024-03-31"))
	assert.NotEmpty(t, ValidateDateRange("2024-01-01", "soon"))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("user@example.com"))
	assert.False(t, ValidateEmail("not-an-email"))
}
