package domain

import "time"

// User is a registered citizen identity. Immutable once created.
type User struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"createdAt"`
}
