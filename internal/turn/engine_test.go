package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickwise/client/internal/conversation"
	app_errors "pickwise/client/internal/errors"
	"pickwise/client/internal/model"
	"pickwise/client/internal/stream"
)

func newTestEngine(t *testing.T) (*Engine, *conversation.Conversation) {
	t.Helper()
	conv := conversation.New(conversation.WithStrict())
	return NewEngine(conv, Options{}), conv
}

func lastMessage(t *testing.T, conv *conversation.Conversation) model.Message {
	t.Helper()
	msgs := conv.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestEngine_FullTurnWithToolSearch(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("what's the pick?")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingResponse, engine.State())
	assert.False(t, engine.CanSubmit())

	engine.HandleEvent(stream.Event{Type: stream.EventStart})
	assert.Equal(t, StateAwaitingResponse, engine.State())

	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Searching..."})
	assert.Equal(t, StateStreamingTool, engine.State())
	require.Len(t, conv.Messages(), 3)
	assert.True(t, conv.Messages()[1].IsTransient())

	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "The "})
	assert.Equal(t, StateStreamingText, engine.State())
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "pick is X."})

	engine.HandleEvent(stream.Event{Type: stream.EventComplete, ToolsUsed: []string{"web_search"}})
	assert.Equal(t, StateIdle, engine.State())
	assert.True(t, engine.CanSubmit())

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	final := msgs[1]
	assert.Equal(t, "The pick is X.", final.Text)
	assert.Equal(t, []string{"web_search"}, final.ToolsUsed)
	assert.True(t, final.Sealed)
	for _, m := range msgs {
		assert.False(t, m.IsTransient())
	}
}

func TestEngine_SecondToolEventSupersedesFirst(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Searching A..."})
	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Searching B..."})

	var labels []string
	for _, m := range conv.Messages() {
		if m.IsTransient() {
			labels = append(labels, m.Text)
		}
	}
	assert.Equal(t, []string{"Searching B..."}, labels)
}

func TestEngine_ChunkClearsTransientOnce(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Searching..."})
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "a"})
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "b"})

	for _, m := range conv.Messages() {
		assert.False(t, m.IsTransient())
	}
	assert.Equal(t, "ab", lastMessage(t, conv).Text)
}

func TestEngine_ToolEventAfterTextIsIgnored(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "text started"})
	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Too late"})

	assert.Equal(t, StateStreamingText, engine.State())
	for _, m := range conv.Messages() {
		assert.False(t, m.IsTransient())
	}
}

func TestEngine_ToolEventAfterSealIsIgnored(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "done"})
	engine.HandleEvent(stream.Event{Type: stream.EventComplete})
	sealed := conv.Messages()

	// The stream is still open when the turn seals; a straggling tool frame
	// must not reopen anything or leave a placeholder behind.
	engine.HandleEvent(stream.Event{Type: stream.EventToolStatus, Tool: "web_search", Message: "Searching..."})

	assert.Equal(t, StateIdle, engine.State())
	assert.True(t, engine.CanSubmit())
	assert.Equal(t, sealed, conv.Messages())
	for _, m := range conv.Messages() {
		assert.False(t, m.IsTransient())
	}
}

func TestEngine_ErrorEventSealsWithMessage(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "partial"})
	engine.HandleEvent(stream.Event{Type: stream.EventError, Content: "model unavailable"})

	assert.True(t, engine.CanSubmit())
	final := lastMessage(t, conv)
	assert.Equal(t, "model unavailable", final.Text)
	assert.True(t, final.Sealed)
}

func TestEngine_ErrorEventWithoutContentUsesFallback(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	engine.HandleEvent(stream.Event{Type: stream.EventError})

	assert.Equal(t, FallbackErrorMessage, lastMessage(t, conv).Text)
}

func TestEngine_SubmitWhileStreamingIsRejected(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Submit("first")
	require.NoError(t, err)

	_, err = engine.Submit("second")
	assert.ErrorIs(t, err, app_errors.ErrTurnInProgress)

	engine.HandleEvent(stream.Event{Type: stream.EventComplete})

	_, err = engine.Submit("second, again")
	assert.NoError(t, err)
}

func TestEngine_FailSealsOpenTurn(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "Hi"})

	engine.Fail("")

	assert.True(t, engine.CanSubmit())
	assert.Equal(t, FallbackErrorMessage, lastMessage(t, conv).Text)

	// Failing again with no open turn changes nothing.
	before := conv.Messages()
	engine.Fail("")
	assert.Equal(t, before, conv.Messages())
}

func TestEngine_StaleEventsAfterCloseAreIgnored(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "Hi"})

	engine.Close()
	before := conv.Messages()

	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: " there"})
	engine.HandleEvent(stream.Event{Type: stream.EventComplete})
	engine.Fail("late failure")

	assert.Equal(t, before, conv.Messages())
	assert.False(t, engine.CanSubmit())

	_, err = engine.Submit("after close")
	assert.ErrorIs(t, err, app_errors.ErrClosed)
}

func TestEngine_UnknownEventIsNoOp(t *testing.T) {
	engine, conv := newTestEngine(t)

	_, err := engine.Submit("hi")
	require.NoError(t, err)
	before := conv.Messages()

	engine.HandleEvent(stream.Event{Type: stream.EventUnknown})

	assert.Equal(t, before, conv.Messages())
	assert.Equal(t, StateAwaitingResponse, engine.State())
}

func TestEngine_IdleTimeoutSealsTurn(t *testing.T) {
	conv := conversation.New(conversation.WithStrict())
	engine := NewEngine(conv, Options{IdleTimeout: 20 * time.Millisecond})

	_, err := engine.Submit("hi")
	require.NoError(t, err)

	require.Eventually(t, engine.CanSubmit, time.Second, 5*time.Millisecond)
	assert.Equal(t, FallbackErrorMessage, lastMessage(t, conv).Text)
}

func TestEngine_OnChangeFires(t *testing.T) {
	conv := conversation.New(conversation.WithStrict())
	var changes int
	engine := NewEngine(conv, Options{OnChange: func() { changes++ }})

	_, err := engine.Submit("hi")
	require.NoError(t, err)
	engine.HandleEvent(stream.Event{Type: stream.EventChunk, Content: "a"})
	engine.HandleEvent(stream.Event{Type: stream.EventComplete})

	// Submit, delta and seal each notify.
	assert.Equal(t, 3, changes)
}
