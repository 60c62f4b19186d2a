package util

import "github.com/google/uuid"

// IsValidUUID accepts only the canonical hyphenated form stored in the database.
func IsValidUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}
