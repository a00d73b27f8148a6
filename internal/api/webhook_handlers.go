package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
)

type createWebhookRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

type testWebhookRequest struct {
	URL string `json:"url"`
}

var validEvents = map[ingest.EventKind]struct{}{
	ingest.EventCompleted: {},
	ingest.EventFailed:    {},
	ingest.EventPartial:   {},
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be absolute")
		return
	}

	// Events default to every kind when omitted.
	events := []ingest.EventKind{ingest.EventCompleted, ingest.EventFailed, ingest.EventPartial}
	if len(req.Events) > 0 {
		events = events[:0]
		for _, raw := range req.Events {
			kind := ingest.EventKind(raw)
			if _, ok := validEvents[kind]; !ok {
				writeError(w, http.StatusBadRequest, "unknown event kind: "+raw)
				return
			}
			events = append(events, kind)
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	reg := ingest.WebhookRegistration{
		ID:        uuid.NewString(),
		Name:      req.Name,
		URL:       req.URL,
		Events:    events,
		Active:    active,
		CreatedAt: s.clock.Now(),
	}
	if err := s.hooks.CreateWebhook(r.Context(), reg); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := s.hooks.ListWebhooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "webhook_id")
	if err := s.hooks.DeleteWebhook(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// testWebhook sends one synthetic payload to the URL without registering it.
func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	var req testWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := s.dispatcher.Test(r.Context(), req.URL); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"url":     req.URL,
			"ok":      false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": req.URL, "ok": true})
}
