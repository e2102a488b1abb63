package turn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"pickwise/client/internal/conversation"
	app_errors "pickwise/client/internal/errors"
	"pickwise/client/internal/model"
	"pickwise/client/internal/stream"
)

// FallbackErrorMessage seals a turn when the transport drops, stalls past the
// idle timeout, or the backend errors without a usable message. No automatic
// retry happens; the user resubmits.
const FallbackErrorMessage = "Sorry, something went wrong while getting your answer. Please try again."

// Turn lifecycle states.
type TurnState stateless.State

var (
	StateIdle             TurnState = "Idle"
	StateAwaitingResponse TurnState = "AwaitingResponse"
	StateStreamingTool    TurnState = "StreamingTool"
	StateStreamingText    TurnState = "StreamingText"
	StateSealed           TurnState = "Sealed"
)

type turnTrigger stateless.Trigger

var (
	triggerSubmit   turnTrigger = "Submit"
	triggerTool     turnTrigger = "ToolStatus"
	triggerDelta    turnTrigger = "TextDelta"
	triggerComplete turnTrigger = "Complete"
	triggerError    turnTrigger = "Error"
	triggerReset    turnTrigger = "Reset"
)

// Options configures an Engine.
type Options struct {
	// IdleTimeout seals the open turn with FallbackErrorMessage after this
	// much stream silence, so a stalled network can never leave the send
	// control disabled forever. Zero disables the watchdog.
	IdleTimeout time.Duration

	// OnChange, when set, is called after every observable state change so
	// the render layer can repaint from a fresh conversation snapshot. It
	// must not block.
	OnChange func()
}

// Engine translates parsed stream events into reducer actions and drives the
// turn state machine Idle -> AwaitingResponse -> (StreamingTool <->
// StreamingText)* -> Sealed -> Idle. All event processing is serialized by an
// internal mutex; after Close no dispatch alters state again.
type Engine struct {
	mu   sync.Mutex
	fsm  *stateless.StateMachine
	conv *conversation.Conversation

	idleTimeout time.Duration
	watchdog    *time.Timer
	onChange    func()
	closed      bool
}

func NewEngine(conv *conversation.Conversation, opts Options) *Engine {
	e := &Engine{
		conv:        conv,
		idleTimeout: opts.IdleTimeout,
		onChange:    opts.OnChange,
	}

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(triggerSubmit, StateAwaitingResponse)
	fsm.Configure(StateAwaitingResponse).
		Permit(triggerTool, StateStreamingTool).
		Permit(triggerDelta, StateStreamingText).
		Permit(triggerComplete, StateSealed).
		Permit(triggerError, StateSealed)
	fsm.Configure(StateStreamingTool).
		PermitReentry(triggerTool).
		Permit(triggerDelta, StateStreamingText).
		Permit(triggerComplete, StateSealed).
		Permit(triggerError, StateSealed)
	fsm.Configure(StateStreamingText).
		PermitReentry(triggerDelta).
		Permit(triggerComplete, StateSealed).
		Permit(triggerError, StateSealed)
	fsm.Configure(StateSealed).
		Permit(triggerReset, StateIdle)

	// Arrival order is not contractually guaranteed upstream; a trigger the
	// current state does not expect is logged and dropped, never a crash.
	fsm.OnUnhandledTrigger(func(_ context.Context, state stateless.State, trigger stateless.Trigger, _ []string) error {
		slog.Warn("Ignoring unexpected turn trigger", "state", state, "trigger", trigger)
		return nil
	})

	e.fsm = fsm
	return e
}

// Submit begins a new turn: it appends the user message, opens the paired
// assistant placeholder and disables further submits until the turn seals.
func (e *Engine) Submit(text string) (model.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return model.Message{}, app_errors.ErrClosed
	}
	if e.fsm.MustState() != StateIdle {
		return model.Message{}, app_errors.ErrTurnInProgress
	}

	userMsg := e.conv.AppendUserMessage(text)
	e.conv.OpenAssistantPlaceholder()
	e.fire(triggerSubmit)
	e.startWatchdogLocked()
	e.notifyLocked()
	return userMsg, nil
}

// HandleEvent dispatches one parsed stream event. Events arriving after
// Close are ignored entirely.
func (e *Engine) HandleEvent(ev stream.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.resetWatchdogLocked()

	switch ev.Type {
	case stream.EventStart:
		// Turn acknowledged; nothing visible changes.
		slog.Debug("Turn acknowledged by backend")

	case stream.EventToolStatus:
		switch e.fsm.MustState() {
		case StateAwaitingResponse, StateStreamingTool:
		default:
			// Late or out-of-order tool announcements (after text started,
			// or after the turn sealed) are log-only.
			slog.Warn("Tool event outside an open turn, ignoring", "tool", ev.Tool, "state", e.fsm.MustState())
			return
		}
		e.conv.SetTransient(ev.Tool, ev.Message)
		e.fire(triggerTool)
		e.notifyLocked()

	case stream.EventChunk:
		// The transient placeholder must be gone before (not after) the
		// first delta renders, so both happen inside one dispatch.
		e.conv.ClearTransient()
		if err := e.conv.AppendDelta(ev.Content); err != nil {
			slog.Warn("Dropping delta", "error", err)
			return
		}
		e.fire(triggerDelta)
		e.notifyLocked()

	case stream.EventComplete:
		if err := e.conv.Seal(ev.ToolsUsed); err != nil {
			slog.Warn("Dropping completion", "error", err)
			return
		}
		e.sealLocked(triggerComplete)

	case stream.EventError:
		msg := ev.Content
		if msg == "" {
			msg = FallbackErrorMessage
		}
		if err := e.conv.SealWithError(msg); err != nil {
			slog.Warn("Dropping stream error", "error", err)
			return
		}
		e.sealLocked(triggerError)

	case stream.EventUnknown:
		// Forward compatible: unknown event kinds never alter state.
		slog.Debug("Ignoring unknown stream event")
	}
}

// Fail seals the open turn from outside the event stream, for transport
// failures and idle timeouts. It is a no-op when no turn is open.
func (e *Engine) Fail(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.fsm.MustState() == StateIdle {
		return
	}
	if message == "" {
		message = FallbackErrorMessage
	}
	if err := e.conv.SealWithError(message); err != nil {
		slog.Warn("Could not seal failed turn", "error", err)
		return
	}
	e.sealLocked(triggerError)
}

// Close tears the engine down when the owning surface is dismissed. Stale
// events fed to the dispatcher afterwards produce no state change.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.stopWatchdogLocked()
}

// CanSubmit reports whether the send control is enabled.
func (e *Engine) CanSubmit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.fsm.MustState() == StateIdle
}

// State returns the current turn state.
func (e *Engine) State() TurnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fsm.MustState().(TurnState)
}

func (e *Engine) sealLocked(trigger turnTrigger) {
	e.stopWatchdogLocked()
	e.fire(trigger)
	// Sealed is momentary: the send control re-enables immediately.
	e.fire(triggerReset)
	e.notifyLocked()
}

func (e *Engine) fire(trigger turnTrigger) {
	if err := e.fsm.Fire(trigger); err != nil {
		slog.Warn("Turn state machine fire error", "trigger", trigger, "error", err)
	}
}

func (e *Engine) startWatchdogLocked() {
	if e.idleTimeout <= 0 {
		return
	}
	e.stopWatchdogLocked()
	e.watchdog = time.AfterFunc(e.idleTimeout, func() {
		slog.Warn("Stream idle timeout reached, sealing turn", "timeout", e.idleTimeout)
		e.Fail(FallbackErrorMessage)
	})
}

func (e *Engine) resetWatchdogLocked() {
	if e.watchdog != nil {
		e.watchdog.Reset(e.idleTimeout)
	}
}

func (e *Engine) stopWatchdogLocked() {
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

func (e *Engine) notifyLocked() {
	if e.onChange != nil {
		e.onChange()
	}
}
