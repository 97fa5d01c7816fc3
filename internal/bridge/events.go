package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fruitsalade/studiokit/internal/logging"
	"github.com/fruitsalade/studiokit/internal/retry"
	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// EventStream follows the host's library-change events over SSE and
// reconnects with exponential backoff.
type EventStream struct {
	baseURL    string
	httpClient *http.Client
	backoff    retry.Config
	token      func() string
}

// NewEventStream subscribes to the same server an HTTPEvaluator talks to,
// sharing its bearer token.
func NewEventStream(h *HTTPEvaluator) *EventStream {
	return &EventStream{
		baseURL:    h.BaseURL(),
		httpClient: &http.Client{Timeout: 0},
		backoff: retry.Config{
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
			Multiplier:  2,
		},
		token: h.AuthToken,
	}
}

// Subscribe connects and returns a channel of events. The channel closes
// when ctx is done. Connection errors are logged and retried.
func (s *EventStream) Subscribe(ctx context.Context) <-chan protocol.Event {
	events := make(chan protocol.Event, 32)
	go s.loop(ctx, events)
	return events
}

func (s *EventStream) loop(ctx context.Context, events chan<- protocol.Event) {
	defer close(events)

	attempt := 1
	for ctx.Err() == nil {
		connected, err := s.connect(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 1
		}

		delay := s.backoff.Backoff(attempt)
		logging.Warn("event stream disconnected",
			logging.Err(err),
			logging.Duration("reconnect_in", delay),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		attempt++
	}
}

func (s *EventStream) connect(ctx context.Context, events chan<- protocol.Event) (bool, error) {
	url := s.baseURL + "/api/v1/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token := s.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	logging.Info("event stream connected", logging.String("url", url))

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				var ev protocol.Event
				if err := json.Unmarshal([]byte(data), &ev); err == nil {
					if ev.Type == "" {
						ev.Type = eventType
					}
					select {
					case events <- ev:
					case <-ctx.Done():
						return true, nil
					}
				}
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read: %w", err)
	}
	return true, fmt.Errorf("connection closed")
}
