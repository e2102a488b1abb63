package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickwise/client/internal/assistant"
	"pickwise/client/internal/conversation"
	app_errors "pickwise/client/internal/errors"
	"pickwise/client/internal/identity"
	"pickwise/client/internal/model"
	"pickwise/client/internal/repository"
	"pickwise/client/internal/stream"
	"pickwise/client/internal/turn"
)

const titleLimit = 50

// Options configures a Session.
type Options struct {
	// Screen names the UI surface owning the session, sent as turn context.
	Screen string

	// SelectedPick, when set, is the pick the user had selected when the
	// surface opened.
	SelectedPick string

	// IdleTimeout is forwarded to the turn engine's stream watchdog.
	IdleTimeout time.Duration

	// OnChange is forwarded to the turn engine; the render layer repaints
	// from Messages() whenever it fires.
	OnChange func()
}

// Session owns one chat surface's conversation: it gates submits on auth and
// entitlement, issues the turn request, pumps the event stream through the
// turn engine, and persists sealed turns to local history. One Session maps
// to one open surface; dismissing the surface calls Close, and reopening
// builds a fresh Session.
type Session struct {
	client       assistant.Client
	repo         repository.Repository
	auth         identity.AuthProvider
	entitlements identity.EntitlementProvider

	conv   *conversation.Conversation
	engine *turn.Engine

	screen       string
	selectedPick string

	mu             sync.Mutex
	conversationID string
	cancelTurn     context.CancelFunc
	turns          sync.WaitGroup
	closed         bool
}

func NewSession(
	client assistant.Client,
	repo repository.Repository,
	auth identity.AuthProvider,
	entitlements identity.EntitlementProvider,
	opts Options,
) *Session {
	conv := conversation.New()
	return &Session{
		client:       client,
		repo:         repo,
		auth:         auth,
		entitlements: entitlements,
		conv:         conv,
		engine: turn.NewEngine(conv, turn.Options{
			IdleTimeout: opts.IdleTimeout,
			OnChange:    opts.OnChange,
		}),
		screen:       opts.Screen,
		selectedPick: opts.SelectedPick,
	}
}

// Submit starts a new turn for the given text. The auth and entitlement
// gates run locally, before anything touches the network; a rejected submit
// leaves the conversation untouched. On success the user message and the
// assistant placeholder are already in the snapshot when Submit returns, and
// the stream is being consumed in the background until the turn seals.
func (s *Session) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: message must not be empty", app_errors.ErrValidation)
	}

	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if err := s.entitlements.CanSendMessage(ctx, user); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return app_errors.ErrClosed
	}

	// History is captured before the new turn's messages are appended.
	history := s.historyLocked()

	userMsg, err := s.engine.Submit(text)
	if err != nil {
		return err
	}

	if err := s.ensureConversationLocked(ctx, user.ID, text); err != nil {
		// The turn is already open; fail it rather than leave the send
		// control disabled.
		s.engine.Fail(turn.FallbackErrorMessage)
		return err
	}
	if err := s.repo.AddMessage(ctx, s.conversationID, &userMsg); err != nil {
		slog.Error("Failed to persist user message", "conversation_id", s.conversationID, "error", err)
	}

	req := &assistant.ChatRequest{
		Message: text,
		UserID:  user.ID,
		Context: assistant.TurnContext{
			Screen:       s.screen,
			SelectedPick: s.selectedPick,
			UserTier:     string(user.Tier),
			MaxPicks:     identity.MaxPicks(user.Tier),
		},
		ConversationHistory: history,
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	s.cancelTurn = cancel
	s.turns.Add(1)
	go s.runTurn(turnCtx, req)
	return nil
}

// runTurn consumes the event stream for one turn. All state mutation goes
// through the engine, which serializes dispatch and ignores stale events
// after Close.
func (s *Session) runTurn(ctx context.Context, req *assistant.ChatRequest) {
	defer s.turns.Done()

	ch := make(chan stream.Event)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.client.StreamChat(ctx, req, ch)
	}()

	for ev := range ch {
		s.engine.HandleEvent(ev)
	}

	if err := <-errCh; err != nil {
		slog.Warn("Turn stream ended with error", "error", err)
	}
	// A transport drop or a stream that ended without a completion frame
	// leaves the turn open; seal it with the apology.
	if s.conv.HasOpenMessage() {
		s.engine.Fail(turn.FallbackErrorMessage)
	}

	s.persistSealedTurn(ctx)
}

func (s *Session) persistSealedTurn(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conversationID == "" {
		return
	}

	msgs := s.conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author != model.RoleAssistant || m.IsTransient() {
			continue
		}
		if !m.Sealed {
			return
		}
		if err := s.repo.AddMessage(ctx, s.conversationID, &m); err != nil {
			slog.Error("Failed to persist assistant message", "conversation_id", s.conversationID, "error", err)
		}
		return
	}
}

// ensureConversationLocked lazily creates the backing conversation record on
// the first turn, titled from the first message.
func (s *Session) ensureConversationLocked(ctx context.Context, userID, firstMessage string) error {
	if s.conversationID != "" {
		return nil
	}
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     truncate(firstMessage, titleLimit),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("could not create conversation: %w", err)
	}
	s.conversationID = conv.ID
	return nil
}

// Resume loads a persisted conversation into the session. Only valid before
// the first turn of the surface.
func (s *Session) Resume(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return app_errors.ErrClosed
	}
	if s.conversationID != "" {
		return fmt.Errorf("%w: session already has a conversation", app_errors.ErrValidation)
	}

	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return app_errors.ErrNotFound
		}
		return err
	}
	msgs, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("could not load messages: %w", err)
	}
	s.conv.Restore(msgs)
	s.conversationID = conversationID
	return nil
}

// Messages returns the current conversation snapshot for rendering.
func (s *Session) Messages() []model.Message {
	return s.conv.Messages()
}

// CanSubmit reports whether the send control is enabled.
func (s *Session) CanSubmit() bool {
	return s.engine.CanSubmit()
}

// ConversationID returns the backing conversation record id, empty before
// the first turn.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// ListConversations returns the signed-in user's stored conversations for
// the history picker.
func (s *Session) ListConversations(ctx context.Context) ([]*model.Conversation, error) {
	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListConversations(ctx, user.ID)
}

// DeleteConversation removes a stored conversation and its messages.
func (s *Session) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return app_errors.ErrNotFound
		}
		return err
	}
	return nil
}

// Wait blocks until the in-flight turn, if any, has been fully consumed and
// persisted.
func (s *Session) Wait() {
	s.turns.Wait()
}

// Close tears the session down: the stream connection is cancelled, stale
// events are gated off, and the in-memory conversation state is cleared. No
// resumption of the stream is possible; reopening the surface starts fresh.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancelTurn
	s.mu.Unlock()

	s.engine.Close()
	if cancel != nil {
		cancel()
	}
	s.turns.Wait()
	s.conv.Clear()
}

// truncate shortens a string to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// historyLocked converts the sealed, non-transient messages of the snapshot
// into the wire history replayed to the backend.
func (s *Session) historyLocked() []assistant.HistoryEntry {
	var history []assistant.HistoryEntry
	for _, m := range s.conv.Messages() {
		if m.IsTransient() || !m.Sealed {
			continue
		}
		history = append(history, assistant.HistoryEntry{
			Role:      string(m.Author),
			Content:   m.Text,
			Timestamp: m.CreatedAt,
		})
	}
	return history
}
