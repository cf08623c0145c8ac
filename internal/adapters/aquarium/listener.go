package aquarium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
)

const maxEventSize = 4 << 20

// Handler receives live events.
type Handler func(ctx context.Context, event model.SourceEvent)

// Listener streams live events from Aquarium over a websocket.
type Listener struct {
	client *Client
}

// Listener returns a Listener sharing the client's session.
func (c *Client) Listener() *Listener {
	return &Listener{client: c}
}

type subscribeMessage struct {
	Subscribe string `json:"subscribe"`
}

// Subscribe connects, subscribes to topic ("*" for everything) and calls fn
// for each event until ctx is done or the connection drops. It returns nil
// only when ctx is canceled.
func (l *Listener) Subscribe(ctx context.Context, topic string, fn Handler) error {
	token := l.client.Token()
	if token == "" {
		return ErrNotConnected
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	if l.client.domain != "" {
		header.Set("X-Aquarium-Domain", l.client.domain)
	}

	conn, resp, err := websocket.Dial(ctx, eventsURL(l.client.baseURL), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: event stream: status %d", ErrAuthentication, resp.StatusCode)
		}
		return fmt.Errorf("dialing event stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxEventSize)

	if err := wsjson.Write(ctx, conn, subscribeMessage{Subscribe: topic}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusPolicyViolation {
				return fmt.Errorf("%w: %s", ErrAuthentication, closeErr.Reason)
			}
			return fmt.Errorf("reading event stream: %w", err)
		}
		var event model.SourceEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			l.client.logger.Warn(ctx, "skipping malformed event", logger.Error(err))
			continue
		}
		fn(ctx, event)
	}
}

func eventsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/events/listen"
}

// Subscribe is a shorthand for c.Listener().Subscribe.
func (c *Client) Subscribe(ctx context.Context, topic string, fn Handler) error {
	return c.Listener().Subscribe(ctx, topic, fn)
}
