package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a time-ordered identifier for bids and users.
// Falls back to a random v4 id if the v7 clock source fails.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

