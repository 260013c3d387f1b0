// Package runs orchestrates ingestion runs: a scrape, a manual file import
// or a historical backfill, each producing a summary report. An in-memory
// queue feeds a worker so runs triggered over the API are processed
// asynchronously, one consistent path with the CLI entry points.
package runs

import (
	"time"

	"bankfeed/internal/ingest"
)

// Type tags which pipeline a run drives.
type Type string

const (
	TypeScrape   Type = "scrape"
	TypeImport   Type = "manual-import"
	TypeBackfill Type = "historical-backfill"
)

// Status is a run's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Summary is the outcome of one run: the ingestion counts plus the rows the
// pipeline skipped and the fatal error, if any, that ended the run early.
// A run with a fatal error still reports the counts accumulated before it.
type Summary struct {
	ingest.Report

	// MalformedSkipped counts rows dropped because they could not be
	// normalized.
	MalformedSkipped int `json:"malformed_skipped"`

	// FatalError is the terminal failure, empty on a clean run.
	FatalError string `json:"fatal_error,omitempty"`
}

// Run is one queued or executed ingestion run.
type Run struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Status Status `json:"status"`

	// Bank scopes a scrape run to one bank; empty means all configured
	// banks.
	Bank string `json:"bank,omitempty"`

	// Dir overrides the statement directory for import and backfill runs.
	Dir string `json:"dir,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Summary *Summary `json:"summary,omitempty"`
	Error   string   `json:"error,omitempty"`
}
