package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/appraise/session"
)

// Event types.
const (
	EventSessionBlocked = "session.blocked"
	EventRunCompleted   = "run.completed"
)

// SignatureHeader carries the HMAC-SHA256 of the body: sha256=<hex>.
const SignatureHeader = "X-Appraise-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// BlockedData is the Data of a session.blocked event.
type BlockedData struct {
	URL    string    `json:"url"`
	Site   string    `json:"site"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

// CompletedData is the Data of a run.completed event.
type CompletedData struct {
	Status   string         `json:"status"`
	Total    int            `json:"total"`
	Records  int            `json:"records"`
	Statuses map[string]int `json:"statuses"`
}

// Sign returns the signature header value of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Appraise-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DefaultRetryDelays are the waits before each delivery attempt.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Notifier delivers events to one endpoint in the background.
type Notifier struct {
	URL    string
	Secret string
	// Delays overrides DefaultRetryDelays.
	Delays []time.Duration
	Log    *slog.Logger
}

// Send delivers event asynchronously, retrying per Delays. done, if not
// nil, receives the final error (nil on success).
func (n *Notifier) Send(event *Event, done func(error)) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	delays := n.Delays
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}

	go func() {
		var err error
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = Deliver(ctx, n.URL, n.Secret, event)
			cancel()
			if err == nil {
				log.Info("webhook delivered",
					"url", n.URL,
					"event", event.Type,
					"run_id", event.RunID,
					"attempt", attempt+1,
				)
				break
			}
			log.Warn("webhook delivery failed",
				"url", n.URL,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		if err != nil {
			log.Error("webhook delivery exhausted all retries",
				"url", n.URL,
				"event", event.Type,
				"run_id", event.RunID,
			)
		}
		if done != nil {
			done(err)
		}
	}()
}

// Operator returns a session.Operator that posts session.blocked for
// every intervention of the given run.
func (n *Notifier) Operator(runID string) session.Operator {
	return session.OperatorFunc(func(_ context.Context, iv session.Intervention) {
		n.Send(&Event{
			Type:  EventSessionBlocked,
			RunID: runID,
			Data: BlockedData{
				URL:    iv.URL,
				Site:   iv.Site,
				Reason: iv.Reason,
				Since:  iv.Since,
			},
		}, nil)
	})
}
