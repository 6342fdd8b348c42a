package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrEmptyPageURL is returned when NextPage is called without a cursor.
var ErrEmptyPageURL = errors.New("catalog page url is empty")

// Getter retrieves a URL body, retrying transient failures on its own.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Pauser inserts the politeness delay that precedes every page fetch.
type Pauser interface {
	PagePause(ctx context.Context) error
}

// Paginator walks the catalog cursor-style. It holds no position itself: the
// caller feeds back Page.Next until it comes back empty.
type Paginator struct {
	getter Getter
	pauser Pauser
	logger *zap.Logger
}

// NewPaginator builds a Paginator. A nil pauser disables the page delay.
func NewPaginator(getter Getter, pauser Pauser, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{getter: getter, pauser: pauser, logger: logger}
}

// BooksURL returns the first page of the catalog for a base API URL.
func BooksURL(base string) string {
	return strings.TrimRight(base, "/") + "/books"
}

// NextPage fetches and decodes the page at pageURL. Any error is fatal for the
// run: the getter has already spent its retry budget.
func (p *Paginator) NextPage(ctx context.Context, pageURL string) (Page, error) {
	if strings.TrimSpace(pageURL) == "" {
		return Page{}, ErrEmptyPageURL
	}
	if p.pauser != nil {
		if err := p.pauser.PagePause(ctx); err != nil {
			return Page{}, fmt.Errorf("page pause: %w", err)
		}
	}
	body, err := p.getter.Get(ctx, pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("fetch catalog page %s: %w", pageURL, err)
	}
	return p.decode(body)
}

func (p *Paginator) decode(body []byte) (Page, error) {
	var payload pagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Page{}, fmt.Errorf("decode catalog page: %w", err)
	}
	page := Page{Count: payload.Count}
	if payload.Next != nil {
		page.Next = strings.TrimSpace(*payload.Next)
	}
	page.Entries = make([]Entry, 0, len(payload.Results))
	for i, raw := range payload.Results {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			p.logger.Warn("Skipping undecodable catalog entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		if entry.ID <= 0 {
			continue
		}
		page.Entries = append(page.Entries, entry)
	}
	return page, nil
}
