package connector

import (
	"context"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// Static always reports the same fetch result. It backs dry-run catalogs
// and sources whose connector is not wired yet.
type Static struct {
	Result ingest.FetchResult
	Err    error
}

// Fetch returns the configured result.
func (s Static) Fetch(context.Context, string) (ingest.FetchResult, error) {
	return s.Result, s.Err
}
