// Package catalog models the remote book catalog (Gutendex) and walks it page
// by page. It also owns format selection, the pure choice of which
// representation of a book to download.
package catalog

import (
	"encoding/json"
	"fmt"
)

// Author is one credited author of a catalog entry.
type Author struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year,omitempty"`
	DeathYear *int   `json:"death_year,omitempty"`
}

// UnmarshalJSON accepts the catalog's author object and, for records written
// before birth and death years were kept, a bare name string.
func (a *Author) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = Author{Name: name}
		return nil
	}
	type plain Author
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode author: %w", err)
	}
	*a = Author(p)
	return nil
}

// Entry is one book offered by the catalog. Entries are transient: they are
// produced per page and discarded once their task completes.
type Entry struct {
	ID            int               `json:"id"`
	Title         string            `json:"title"`
	Authors       []Author          `json:"authors"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int               `json:"download_count"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves"`
	Languages     []string          `json:"languages"`

	// Raw keeps every field of the catalog object, including the ones not
	// modelled above, so they can be passed through to metadata records.
	Raw map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and retains the raw object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode catalog entry: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode catalog entry fields: %w", err)
	}
	*e = Entry(p)
	e.Raw = raw
	return nil
}

// CoverImage returns the JPEG cover URL if the catalog lists one.
func (e Entry) CoverImage() string {
	return e.Formats["image/jpeg"]
}

// DisplayTitle falls back to a synthetic title for untitled entries.
func (e Entry) DisplayTitle() string {
	if e.Title != "" {
		return e.Title
	}
	return fmt.Sprintf("book_%d", e.ID)
}

// Page is one decoded catalog response.
type Page struct {
	Count   int     `json:"count"`
	Next    string  `json:"-"`
	Entries []Entry `json:"-"`
}

type pagePayload struct {
	Count   int               `json:"count"`
	Next    *string           `json:"next"`
	Results []json.RawMessage `json:"results"`
}
