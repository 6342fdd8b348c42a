// Package publisher announces accepted books to downstream consumers such as
// the search indexer.
package publisher

import (
	"context"
	"strconv"
	"time"
)

// Publisher sends a payload to a topic and returns the broker message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// EventBookAccepted is the event type attribute for BookAccepted.
const EventBookAccepted = "book.accepted"

// BookAccepted is published once per newly collected book.
type BookAccepted struct {
	RunID     string    `json:"run_id"`
	BookID    int       `json:"id"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	WordCount int       `json:"word_count"`
	URI       string    `json:"uri"`
	SavedAt   time.Time `json:"saved_at"`
}

// Attributes returns routing attributes attached to the broker message.
func (e BookAccepted) Attributes() map[string]string {
	return map[string]string{
		"event":   EventBookAccepted,
		"run_id":  e.RunID,
		"book_id": strconv.Itoa(e.BookID),
	}
}

// Attributed payloads contribute message attributes.
type Attributed interface {
	Attributes() map[string]string
}
