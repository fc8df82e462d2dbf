package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered id for new rows.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateToken returns a random token identifying one lock holder.
func GenerateToken() string {
	return uuid.NewString()
}
