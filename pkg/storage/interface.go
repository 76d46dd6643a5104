package storage

import "ksmeta/pkg/models"

// ResultStore persists terminal per-row results keyed by source URL so a
// re-run can serve previously successful rows without refetching.
type ResultStore interface {
	// Get returns the stored result for a source URL, with found=false when absent
	Get(sourceURL string) (result *models.ProcessingResult, found bool, err error)

	// Put stores a terminal result under its source URL
	Put(result *models.ProcessingResult) error

	// Close releases the underlying database
	Close() error
}
