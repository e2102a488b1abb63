package conversation

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickwise/client/internal/model"
)

// ErrNoOpenMessage is returned when a delta or seal arrives with no open
// assistant message. That is a programming error on the caller's side: in
// strict mode (tests, development builds) the reducer panics instead, so the
// bug fails loudly; in production it no-ops defensively rather than corrupt
// the message list.
var ErrNoOpenMessage = errors.New("conversation: no open assistant message")

// Conversation owns the ordered message list of one chat surface and applies
// state transitions under the invariants:
//
//   - at most one assistant message is open (receiving deltas) at a time,
//   - at most one transient placeholder exists per open turn,
//   - message order equals creation order and is never reordered,
//   - a sealed message's text is immutable.
//
// All methods are safe for concurrent use; in practice mutation is serialized
// by the turn engine and only snapshots are read from other goroutines.
type Conversation struct {
	mu       sync.Mutex
	messages []model.Message

	openIdx      int // index of the open assistant message, -1 when none
	transientIdx int // index of the transient placeholder, -1 when none

	strict bool
	now    func() time.Time
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithStrict makes invariant violations panic instead of no-op.
func WithStrict() Option {
	return func(c *Conversation) { c.strict = true }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

func New(opts ...Option) *Conversation {
	c := &Conversation{
		openIdx:      -1,
		transientIdx: -1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppendUserMessage inserts a new immutable user message at the end.
func (c *Conversation) AppendUserMessage(text string) model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := model.Message{
		ID:        uuid.NewString(),
		Author:    model.RoleUser,
		Text:      text,
		CreatedAt: c.now(),
		Sealed:    true,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// OpenAssistantPlaceholder inserts a new empty assistant message at the end
// and makes it the open message.
func (c *Conversation) OpenAssistantPlaceholder() model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openIdx >= 0 {
		c.violated("placeholder opened while another assistant message is open")
		// Seal the stale one defensively so the invariant holds.
		c.messages[c.openIdx].Sealed = true
		c.openIdx = -1
	}

	msg := model.Message{
		ID:        uuid.NewString(),
		Author:    model.RoleAssistant,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, msg)
	c.openIdx = len(c.messages) - 1
	return msg
}

// SetTransient replaces any existing transient placeholder for the current
// turn with a new one carrying the given tool identifier and human-readable
// label, inserted immediately before the open assistant message.
func (c *Conversation) SetTransient(tool, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeTransientLocked()

	msg := model.Message{
		ID:        uuid.NewString(),
		Author:    model.RoleAssistant,
		Text:      label,
		CreatedAt: c.now(),
		Transient: model.TransientKind(tool),
	}

	at := len(c.messages)
	if c.openIdx >= 0 {
		at = c.openIdx
	}
	c.messages = append(c.messages, model.Message{})
	copy(c.messages[at+1:], c.messages[at:])
	c.messages[at] = msg
	c.transientIdx = at
	if c.openIdx >= at {
		c.openIdx++
	}
}

// ClearTransient removes the transient placeholder for the current turn, if
// present. Clearing when none exists is a no-op.
func (c *Conversation) ClearTransient() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeTransientLocked()
}

func (c *Conversation) removeTransientLocked() {
	if c.transientIdx < 0 {
		return
	}
	at := c.transientIdx
	c.messages = append(c.messages[:at], c.messages[at+1:]...)
	c.transientIdx = -1
	if c.openIdx > at {
		c.openIdx--
	}
}

// AppendDelta appends delta text to the open assistant message.
func (c *Conversation) AppendDelta(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openIdx < 0 {
		c.violated("delta with no open assistant message")
		return ErrNoOpenMessage
	}
	c.messages[c.openIdx].Text += text
	return nil
}

// Seal marks the open assistant message complete, attaches toolsUsed and
// clears the open pointer. Any leftover transient placeholder is removed.
func (c *Conversation) Seal(toolsUsed []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealLocked(toolsUsed, nil)
}

// SealWithError is Seal with the text overwritten by an error message first.
func (c *Conversation) SealWithError(message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealLocked(nil, &message)
}

func (c *Conversation) sealLocked(toolsUsed []string, errText *string) error {
	c.removeTransientLocked()

	if c.openIdx < 0 {
		c.violated("seal with no open assistant message")
		return ErrNoOpenMessage
	}
	msg := &c.messages[c.openIdx]
	if errText != nil {
		msg.Text = *errText
	}
	if len(toolsUsed) > 0 {
		msg.ToolsUsed = append([]string(nil), toolsUsed...)
	}
	msg.Sealed = true
	c.openIdx = -1
	return nil
}

// HasOpenMessage reports whether an assistant message is still receiving
// deltas.
func (c *Conversation) HasOpenMessage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openIdx >= 0
}

// Messages returns a snapshot copy of the ordered message list.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Restore seeds the conversation with previously persisted messages. It is
// only valid before the first turn of the surface.
func (c *Conversation) Restore(messages []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) > 0 || c.openIdx >= 0 {
		c.violated("restore into a non-empty conversation")
		return
	}
	c.messages = append(c.messages, messages...)
}

// Clear tears the conversation state down when the owning surface is
// dismissed.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.openIdx = -1
	c.transientIdx = -1
}

func (c *Conversation) violated(what string) {
	if c.strict {
		panic("conversation invariant violated: " + what)
	}
	slog.Warn("Conversation invariant violated, ignoring", "violation", what)
}
