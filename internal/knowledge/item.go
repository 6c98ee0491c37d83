package knowledge

import "time"

type Type string

const (
	TypeBook        Type = "book"
	TypeNote        Type = "note"
	TypeStrategy    Type = "strategy"
	TypeObservation Type = "observation"
)

func (t Type) Valid() bool {
	switch t {
	case TypeBook, TypeNote, TypeStrategy, TypeObservation:
		return true
	}
	return false
}

// Item is one entry of the user's knowledge base. Items are independent;
// their only relation to chat is being folded into the system instruction.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
