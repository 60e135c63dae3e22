package server

import (
	"net/http"

	"github.com/google/go-github/v66/github"
	"github.com/google/uuid"

	"github.com/stagehand-dev/stagehand/queue"
)

// Webhook ingests one delivery: validate, dedup by delivery guid,
// translate, enqueue. The response never waits for orchestration; the
// platform only cares that we accepted the delivery.
func (s *Server) Webhook(w http.ResponseWriter, r *http.Request) {
	l := s.l.With("handler", "Webhook")

	var secret []byte
	if s.cfg.Server.WebhookSecret != "" {
		secret = []byte(s.cfg.Server.WebhookSecret)
	}

	payload, err := github.ValidatePayload(r, secret)
	if err != nil {
		l.Error("payload validation failed", "error", err)
		http.Error(w, "bad signature", http.StatusForbidden)
		return
	}

	eventType := github.WebHookType(r)
	guid := github.DeliveryID(r)
	if guid == "" {
		guid = uuid.NewString()
	}
	l = l.With("event", eventType, "guid", guid)

	seen, err := s.db.SeenDelivery(guid)
	if err != nil {
		l.Error("journal lookup failed", "error", err)
	}
	if seen {
		l.Debug("duplicate delivery")
		w.WriteHeader(http.StatusOK)
		return
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		l.Error("failed to parse payload", "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	ev, ok := s.mapper.Map(parsed)
	if !ok {
		if err := s.db.RecordDelivery(guid, eventType); err != nil {
			l.Error("failed to journal delivery", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	ok = s.jq.Enqueue(queue.Job{
		Run: func() error {
			return s.orch.Handle(s.ctx, ev)
		},
		OnFail: func(jobErr error) {
			l.Error("event handling failed", "error", jobErr)
		},
	})
	if !ok {
		// not journaled: the 503 asks the platform to redeliver, and a
		// journaled guid would make the redelivery look like a duplicate
		l.Error("failed to enqueue event: queue is full")
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	if err := s.db.RecordDelivery(guid, eventType); err != nil {
		l.Error("failed to journal delivery", "error", err)
	}

	w.WriteHeader(http.StatusAccepted)
}
