package storage

import "time"

// Brain is one account: a named knowledge space plus its chat history.
type Brain struct {
	ID        string
	Password  string
	CreatedAt time.Time
}
