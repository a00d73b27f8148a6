package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// WebhookStore persists webhook registrations in Postgres.
//
// Expected schema:
//
//	CREATE TABLE webhooks (
//		id TEXT PRIMARY KEY,
//		name TEXT NOT NULL,
//		url TEXT NOT NULL,
//		events JSONB NOT NULL,
//		active BOOLEAN NOT NULL DEFAULT TRUE,
//		failure_count INT NOT NULL DEFAULT 0,
//		created_at TIMESTAMPTZ NOT NULL
//	);
type WebhookStore struct {
	pool dbConn
}

// NewWebhookStore constructs a WebhookStore from an existing pool.
func NewWebhookStore(pool dbConn) (*WebhookStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &WebhookStore{pool: pool}, nil
}

// CreateWebhook stores a new registration. Events are stored as a JSONB
// array so subscription checks can use the containment operator.
func (s *WebhookStore) CreateWebhook(ctx context.Context, reg ingest.WebhookRegistration) error {
	eventsJSON, err := json.Marshal(reg.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	const query = `
INSERT INTO webhooks (id, name, url, events, active, failure_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.pool.Exec(ctx, query,
		reg.ID, reg.Name, reg.URL, eventsJSON, reg.Active, reg.FailureCount, reg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

const webhookColumns = `id, name, url, events, active, failure_count, created_at`

// ListWebhooks returns all registrations ordered by creation time.
func (s *WebhookStore) ListWebhooks(ctx context.Context) ([]ingest.WebhookRegistration, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

// ListActiveWebhooks returns active registrations subscribed to the event.
func (s *WebhookStore) ListActiveWebhooks(ctx context.Context, kind ingest.EventKind) ([]ingest.WebhookRegistration, error) {
	query := `SELECT ` + webhookColumns + `
FROM webhooks
WHERE active AND events @> $1
ORDER BY created_at`
	kindJSON, err := json.Marshal([]ingest.EventKind{kind})
	if err != nil {
		return nil, fmt.Errorf("marshal event kind: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, kindJSON)
	if err != nil {
		return nil, fmt.Errorf("list active webhooks: %w", err)
	}
	defer rows.Close()
	return scanWebhooks(rows)
}

// DeleteWebhook removes a registration.
func (s *WebhookStore) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook %s not found", id)
	}
	return nil
}

// RecordWebhookFailure increments the failure counter for a registration.
func (s *WebhookStore) RecordWebhookFailure(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook %s not found", id)
	}
	return nil
}

func scanWebhooks(rows pgx.Rows) ([]ingest.WebhookRegistration, error) {
	var hooks []ingest.WebhookRegistration
	for rows.Next() {
		var (
			reg        ingest.WebhookRegistration
			eventsJSON []byte
		)
		if err := rows.Scan(
			&reg.ID, &reg.Name, &reg.URL, &eventsJSON,
			&reg.Active, &reg.FailureCount, &reg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		if err := json.Unmarshal(eventsJSON, &reg.Events); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
		hooks = append(hooks, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return hooks, nil
}
