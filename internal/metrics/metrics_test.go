package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://gutendex.com/books", "gutendex.com"},
		{"standard https", "https://WWW.Gutenberg.org/ebooks/84", "www.gutenberg.org"},
		{"no scheme", "gutendex.com/books", "gutendex.com"},
		{"host with port", "gutendex.com:8080", "gutendex.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpers(t *testing.T) {
	before := testutil.ToFloat64(booksTotal.WithLabelValues("saved"))
	ObserveBook("saved")
	assert.Equal(t, before+1, testutil.ToFloat64(booksTotal.WithLabelValues("saved")))

	ObserveFetchAttempt("https://metrics.test/book.txt", "success", 42)
	assert.Equal(t, float64(42), testutil.ToFloat64(fetchBytesTotal.WithLabelValues("metrics.test")))

	IncInFlight()
	IncInFlight()
	DecInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(inFlightFetches))
	DecInFlight()

	SetCollected(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(collectedBooks))

	ObserveBackoff(time.Second)
	ObservePage()
	ObserveRateLimitDelay("gutendex.com", 50*time.Millisecond)

	ObserveRobotsDenied("https://denied.test/private/1.txt")
	assert.Equal(t, float64(1), testutil.ToFloat64(robotsDenied.WithLabelValues("denied.test")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObservePage()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "harvester_catalog_pages_total"))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://gutendex.com", "https://gutenberg.org", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		got := SanitizeSite(orig)
		if got == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", orig)
		}
	})
}
