// utils/validator.go - Input validation
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var exportFormats = map[string]bool{
	"json": true,
	"csv":  true,
}

// ValidateEmail checks if email is valid
func ValidateEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

// ValidateImportFormat checks the export format of an import job
func ValidateImportFormat(format string) bool {
	return exportFormats[strings.ToLower(strings.TrimSpace(format))]
}

// ValidateDate checks a YYYY-MM-DD date string
func ValidateDate(value string) bool {
	_, err := time.Parse(dateLayout, value)
	return err == nil
}

// ValidateDateRange checks both dates and their ordering. Returns an empty
// string when the range is valid.
func ValidateDateRange(startDate, endDate string) string {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return fmt.Sprintf("invalid end date %q, expected YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return "end date must not be before start date"
	}
	return ""
}

// SanitizeInput removes potentially harmful characters
func SanitizeInput(input string) string {
	// Remove leading/trailing spaces
	input = strings.TrimSpace(input)

	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	return input
}
