package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

// ErrWebhookNotFound is returned when a registration ID is unknown.
var ErrWebhookNotFound = errors.New("webhook not found")

// WebhookStore keeps webhook registrations in memory.
type WebhookStore struct {
	mu    sync.RWMutex
	hooks map[string]ingest.WebhookRegistration
}

// NewWebhookStore constructs a WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{hooks: make(map[string]ingest.WebhookRegistration)}
}

// CreateWebhook stores a new registration.
func (s *WebhookStore) CreateWebhook(_ context.Context, reg ingest.WebhookRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.hooks[reg.ID]; exists {
		return errors.New("webhook already exists")
	}
	s.hooks[reg.ID] = reg
	return nil
}

// ListWebhooks returns all registrations ordered by creation time.
func (s *WebhookStore) ListWebhooks(_ context.Context) ([]ingest.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.WebhookRegistration, 0, len(s.hooks))
	for _, h := range s.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListActiveWebhooks returns active registrations subscribed to the event.
func (s *WebhookStore) ListActiveWebhooks(_ context.Context, kind ingest.EventKind) ([]ingest.WebhookRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ingest.WebhookRegistration
	for _, h := range s.hooks {
		if h.Active && h.Subscribed(kind) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteWebhook removes a registration.
func (s *WebhookStore) DeleteWebhook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hooks[id]; !ok {
		return ErrWebhookNotFound
	}
	delete(s.hooks, id)
	return nil
}

// RecordWebhookFailure increments the failure counter for a registration.
func (s *WebhookStore) RecordWebhookFailure(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hooks[id]
	if !ok {
		return ErrWebhookNotFound
	}
	h.FailureCount++
	s.hooks[id] = h
	return nil
}
