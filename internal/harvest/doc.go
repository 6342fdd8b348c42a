// Package harvest runs the acquisition loop: it walks the catalog page by
// page, fans each page out into one task per uncollected entry and stops once
// the checkpoint holds the target number of books or the catalog runs out.
//
// Each entry moves through NEW → FORMAT_SELECTED → FETCHED → EXTRACTED →
// PERSISTED → COLLECTED, or ends DROPPED at any step. A dropped entry never
// aborts the page or the run; only a failed page fetch does.
package harvest
