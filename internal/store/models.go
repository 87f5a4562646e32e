package store

import "time"

// Event is one audit-trail entry: a terminal session transition or a
// stored graded submission.
type Event struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
