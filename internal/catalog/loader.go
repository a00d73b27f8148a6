// Package catalog loads the source registry that drives scheduling.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// registryFile mirrors the on-disk catalog document.
type registryFile struct {
	Sources []registryEntry `json:"sources"`
}

type registryEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tier      *int   `json:"tier"`
	Cadence   string `json:"cadence"`
	Connector string `json:"connector"`
	Active    *bool  `json:"active"`
}

// FileLoader reads ScheduledSource records from a JSON registry file.
type FileLoader struct {
	path   string
	logger *zap.Logger
}

// NewFileLoader constructs a FileLoader.
func NewFileLoader(path string, logger *zap.Logger) *FileLoader {
	return &FileLoader{path: path, logger: logger}
}

// Load parses the registry and returns normalized sources. Malformed
// entries (missing id) are skipped and counted, never fatal: a partial
// catalog must not block startup. Load never mutates persisted state and
// is safe to invoke repeatedly.
func (l *FileLoader) Load() ([]ingest.ScheduledSource, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", l.path, err)
	}

	var reg registryFile
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", l.path, err)
	}

	sources := make([]ingest.ScheduledSource, 0, len(reg.Sources))
	skipped := 0
	for _, entry := range reg.Sources {
		if entry.ID == "" {
			skipped++
			continue
		}
		sources = append(sources, normalize(entry))
	}

	if skipped > 0 {
		l.logger.Warn("skipped malformed catalog entries",
			zap.Int("skipped", skipped),
			zap.Int("loaded", len(sources)),
		)
	}
	return sources, nil
}

func normalize(entry registryEntry) ingest.ScheduledSource {
	// Missing tier lands in the lowest-priority class. An explicit tier
	// outside 1..4 (e.g. 0) opts the source into cadence-driven scheduling.
	tier := ingest.Tier4
	if entry.Tier != nil {
		tier = ingest.Tier(*entry.Tier)
	}

	cadence := ingest.Cadence(entry.Cadence)
	if cadence == "" {
		cadence = ingest.CadenceIrregular
	}

	connector := entry.Connector
	if connector == "" {
		connector = entry.ID
	}

	status := ingest.SourceStatusActive
	if entry.Active != nil && !*entry.Active {
		status = ingest.SourceStatusPaused
	}

	return ingest.ScheduledSource{
		SourceID:  entry.ID,
		Name:      entry.Name,
		Tier:      tier,
		Cadence:   cadence,
		Connector: connector,
		Status:    status,
	}
}
