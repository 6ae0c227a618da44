package store

import "fmt"

// MaxUserIDLength bounds user identifier strings accepted from chat input.
// Discord snowflakes are at most 20 digits; anything much longer is junk.
const MaxUserIDLength = 32

// ValidateUserID checks that id looks like a Discord snowflake.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user identifier is empty")
	}
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return fmt.Errorf("user identifier %q is not numeric", id)
		}
	}
	return nil
}
