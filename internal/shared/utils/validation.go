package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Payload limits for operator notifications received over the API.
const (
	MaxNotificationSize  = 64 * 1024
	MaxNotificationDepth = 8
	MaxNameLength        = 64
)

// NamePattern restricts stream names to characters that are safe as status
// path segments; dots would collide with dotted status lookups.
var NamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateName checks a stream name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("name %q exceeds %d characters", name, MaxNameLength)
	}
	if !NamePattern.MatchString(name) {
		return fmt.Errorf("name %q contains invalid characters (only alphanumeric, hyphens, and underscores allowed)", name)
	}
	return nil
}

// ValidateNotification checks size, syntax and nesting of a JSON
// notification body and returns it decoded.
func ValidateNotification(data []byte) (map[string]any, error) {
	if len(data) > MaxNotificationSize {
		return nil, fmt.Errorf("notification size %d bytes exceeds maximum %d bytes", len(data), MaxNotificationSize)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("notification body is empty")
	}

	var out map[string]any
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("notification has no keys")
	}
	if err := ValidateJSONDepth(out, MaxNotificationDepth); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateJSONDepth rejects decoded JSON nested deeper than maxDepth.
func ValidateJSONDepth(data any, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data any, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", depth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
