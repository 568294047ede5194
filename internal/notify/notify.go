// Package notify pushes operator alerts to an ntfy-compatible endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultInterval is the minimum gap between two alerts.
	DefaultInterval = time.Minute

	authFailedTitle = "Threads login failed"
)

// Notifier posts plain-text alerts. A nil Notifier or one without an
// endpoint drops every alert.
type Notifier struct {
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

// New returns a Notifier for endpoint. client may be nil.
func New(client *http.Client, endpoint string) *Notifier {
	return &Notifier{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		limiter:  rate.NewLimiter(rate.Every(DefaultInterval), 1),
	}
}

// AuthFailed alerts that stored credentials no longer sign in. Alerts past
// the rate limit are dropped.
func (n *Notifier) AuthFailed(ctx context.Context, cause error) {
	if n == nil || n.endpoint == "" {
		return
	}
	if !n.limiter.Allow() {
		slog.Debug("notify alert throttled", "title", authFailedTitle)
		return
	}
	msg := "Automation could not sign in to Threads."
	if cause != nil {
		msg += " " + cause.Error()
	}
	if err := Send(ctx, n.client, n.endpoint, authFailedTitle, msg); err != nil {
		slog.Warn("notify alert failed", "error", err)
	}
}

// Send posts message to endpoint. title is sent as the ntfy Title header
// when non-empty.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
		req.Header.Set("Tags", "warning")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
