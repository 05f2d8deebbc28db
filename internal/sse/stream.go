// Package sse writes progress-bus subscriptions to clients as Server-Sent
// Events.
package sse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cognivoice/internal/logging"
	"cognivoice/internal/progress"
)

// Stream subscribes to jobID on the bus and forwards every payload to the
// client until the client disconnects. The stream is transport-only: it keeps
// serving after a final event (heartbeats included) and ends only when the
// request context is done or the subscription is torn down. Subscribing to an
// unknown or finished job is valid and simply yields heartbeats.
func Stream(w http.ResponseWriter, r *http.Request, bus *progress.Bus, jobID string, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := bus.Subscribe(jobID)
	defer bus.Unsubscribe(jobID, sub)

	logger = logger.With(logging.String(logging.FieldJobID, jobID))
	logger.Debug("sse stream opened")

	for {
		payload, err := sub.Next(r.Context())
		if err != nil {
			if !errors.Is(err, progress.ErrSubscriberClosed) && r.Context().Err() == nil {
				logger.Debug("sse stream ended", logging.Error(err))
			}
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			logger.Debug("sse write failed", logging.Error(err))
			return
		}
		flusher.Flush()
	}
}
