// Package validation checks identifiers supplied by API clients. Kinematic
// inputs (dt, angles, rates) are deliberately not checked here; they are
// applied as given.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Request and identifier limits
const (
	MaxRequestSize = 64 * 1024 // 64KB max request body
	MaxBodyNameLen = 32
	MaxClassLen    = 32
)

var (
	// Alphanumeric, spaces, hyphens, underscores, dots and parentheses
	validBodyNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.()]+$`)
	validClassChars    = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]*$`)
)

// ValidateBodyName validates a body name and returns it trimmed.
func ValidateBodyName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("body name cannot be empty")
	}

	if len(name) > MaxBodyNameLen {
		return "", fmt.Errorf("body name too long: %d characters (max %d)", len(name), MaxBodyNameLen)
	}

	if !utf8.ValidString(name) {
		return "", fmt.Errorf("body name contains invalid UTF-8 characters")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("body name cannot be only whitespace")
	}

	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("body name contains control characters")
		}
	}

	if !validBodyNameChars.MatchString(trimmed) {
		return "", fmt.Errorf("body name contains invalid characters (only alphanumeric, spaces, hyphens, underscores, dots and parentheses allowed)")
	}

	return trimmed, nil
}

// ValidateClassName checks the shape of a vehicle class name. The empty
// name is accepted and selects the default class.
func ValidateClassName(class string) error {
	if class == "" {
		return nil
	}
	if len(class) > MaxClassLen {
		return fmt.Errorf("class name too long: %d characters (max %d)", len(class), MaxClassLen)
	}
	if !validClassChars.MatchString(class) {
		return fmt.Errorf("invalid class name %q (lowercase letters, digits, hyphens and underscores)", class)
	}
	return nil
}
