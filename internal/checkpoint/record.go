// Package checkpoint persists which catalog entries have been accepted so a
// restarted harvest resumes where the previous one stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JakeFAU/book-harvester/internal/catalog"
)

// Record is the metadata kept for one accepted book.
type Record struct {
	ID            int              `json:"id"`
	Title         string           `json:"title"`
	Authors       []catalog.Author `json:"authors"`
	Filename      string           `json:"filename"`
	CoverImage    string           `json:"cover_image,omitempty"`
	WordCount     int              `json:"word_count"`
	SavedAt       time.Time        `json:"saved_at"`
	DownloadCount int              `json:"download_count,omitempty"`
	Bookshelves   []string         `json:"bookshelves,omitempty"`
	Subjects      []string         `json:"subjects,omitempty"`
	Languages     []string         `json:"languages,omitempty"`
	SourceURL     string           `json:"source_url,omitempty"`
	ContentHash   string           `json:"content_hash,omitempty"`
	// Extra carries catalog fields not modelled above, verbatim.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// AuthorNames returns the author names in catalog order.
func (r Record) AuthorNames() []string {
	names := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		names = append(names, a.Name)
	}
	return names
}

// Store tracks accepted books. Implementations must be safe for concurrent use.
type Store interface {
	// Load restores persisted state. Missing or unreadable state yields an empty store.
	Load(ctx context.Context) error
	IsCollected(id int) bool
	// RecordAccepted upserts rec and marks its id collected, durably, before returning.
	RecordAccepted(ctx context.Context, rec Record) error
	Count() int
	// Records returns a snapshot ordered by id.
	Records() []Record
	Close() error
}
