package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pickwise/client/internal/stream"
)

// ChatPath is the assistant backend's streaming chat endpoint.
const ChatPath = "/api/v1/assistant/chat"

// TurnContext carries the screen-level context sent with every turn.
type TurnContext struct {
	Screen       string `json:"screen" validate:"required"`
	SelectedPick string `json:"selectedPick,omitempty"`
	UserTier     string `json:"userTier" validate:"required"`
	MaxPicks     int    `json:"maxPicks" validate:"gte=0"`
}

// HistoryEntry is one prior message replayed to the backend.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the outbound request body, issued once per user turn.
// UserID must already be resolved to an authenticated identity; the client
// refuses to send without one.
type ChatRequest struct {
	Message             string         `json:"message" validate:"required,min=1"`
	UserID              string         `json:"userId" validate:"required"`
	Context             TurnContext    `json:"context"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
}

// Client defines the interface for talking to the assistant backend.
type Client interface {
	// StreamChat issues the turn request and pushes decoded events onto ch
	// in arrival order until the stream ends. It closes ch before returning.
	// A non-nil error means the transport failed before the backend sealed
	// the turn; frame-level garbage is dropped inside the parser and is not
	// an error.
	StreamChat(ctx context.Context, req *ChatRequest, ch chan<- stream.Event) error
}

type httpClient struct {
	client *http.Client
	url    string
}

// NewClient returns a Client for the backend at baseURL. connectTimeout
// bounds dialing and request setup only; the response body stays open for as
// long as the backend streams, so the http.Client itself carries no timeout.
func NewClient(baseURL string, connectTimeout time.Duration) Client {
	return &httpClient{
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: connectTimeout,
			},
		},
		url: baseURL,
	}
}

func (c *httpClient) StreamChat(ctx context.Context, req *ChatRequest, ch chan<- stream.Event) error {
	defer close(ch)

	if err := validateRequest(req); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+ChatPath, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	parser := stream.NewParser()
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := c.emit(ctx, ch, parser.Feed(buf[:n])); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return c.emit(ctx, ch, parser.Close())
		}
		if readErr != nil {
			return fmt.Errorf("stream read failed: %w", readErr)
		}
	}
}

func (c *httpClient) emit(ctx context.Context, ch chan<- stream.Event, events []stream.Event) error {
	for _, ev := range events {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
