package models

import "time"

// User represents an account identified by a unique login id.
// PassHash is a bcrypt digest, the plaintext is never stored.
type User struct {
	ID        int64
	LoginID   string
	PassHash  []byte
	CreatedAt time.Time
}
