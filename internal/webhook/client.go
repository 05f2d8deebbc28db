// Package webhook delivers the worker's terminal progress callback to the
// gateway's internal relay endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cognivoice/internal/config"
	"cognivoice/internal/progress"
)

const userAgent = "cognivoice/0.1.0"

// Notifier is the terminal-callback surface exposed to the orchestrator. It is
// invoked exactly once per job, after the final event has been published
// locally. Delivery is fire-and-forget: a failed delivery is logged by the
// caller, never retried.
type Notifier interface {
	Deliver(ctx context.Context, jobID, ownerID string, event progress.Event) error
}

// Envelope is the relay wire format.
type Envelope struct {
	JobID        string         `json:"job_id"`
	OwnerID      string         `json:"owner_id"`
	SharedSecret string         `json:"shared_secret"`
	Event        progress.Event `json:"event"`
}

// NewNotifier builds a relay client when a target URL is configured, and a
// noop implementation otherwise.
func NewNotifier(cfg *config.Config) Notifier {
	target := strings.TrimSpace(cfg.Webhook.TargetURL)
	if target == "" {
		return noopNotifier{}
	}

	timeout := time.Duration(cfg.WebhookTimeout()) * time.Second
	return &httpNotifier{
		endpoint: target,
		secret:   cfg.Webhook.SharedSecret,
		client:   &http.Client{Timeout: timeout},
	}
}

type httpNotifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

func (n *httpNotifier) Deliver(ctx context.Context, jobID, ownerID string, event progress.Event) error {
	if n == nil || n.client == nil {
		return nil
	}

	body, err := json.Marshal(Envelope{
		JobID:        jobID,
		OwnerID:      ownerID,
		SharedSecret: n.secret,
		Event:        event,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Deliver(context.Context, string, string, progress.Event) error { return nil }
