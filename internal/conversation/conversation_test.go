package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickwise/client/internal/model"
)

func TestConversation_OrderedDeltaAccumulation(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("what should I pick?")
	c.OpenAssistantPlaceholder()

	require.NoError(t, c.AppendDelta("The "))
	require.NoError(t, c.AppendDelta("pick "))
	require.NoError(t, c.AppendDelta("is X."))
	require.NoError(t, c.Seal([]string{"web_search"}))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Author)
	assert.Equal(t, model.RoleAssistant, msgs[1].Author)
	assert.Equal(t, "The pick is X.", msgs[1].Text)
	assert.Equal(t, []string{"web_search"}, msgs[1].ToolsUsed)
	assert.True(t, msgs[1].Sealed)
	assert.False(t, c.HasOpenMessage())
}

func TestConversation_TransientExclusivity(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()

	c.SetTransient("web_search", "Searching...")
	c.SetTransient("web_search", "Still searching...")

	var transients []model.Message
	for _, m := range c.Messages() {
		if m.IsTransient() {
			transients = append(transients, m)
		}
	}
	require.Len(t, transients, 1)
	assert.Equal(t, "Still searching...", transients[0].Text)
	assert.Equal(t, model.TransientKind("web_search"), transients[0].Transient)
}

func TestConversation_TransientSitsBeforeOpenMessage(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()
	c.SetTransient("web_search", "Searching...")

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.True(t, msgs[1].IsTransient())
	assert.False(t, msgs[2].IsTransient())

	// The open pointer must have followed the insertion.
	require.NoError(t, c.AppendDelta("answer"))
	assert.Equal(t, "answer", c.Messages()[2].Text)
}

func TestConversation_ClearTransientIsIdempotent(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()

	before := c.Messages()
	c.ClearTransient()
	c.ClearTransient()
	assert.Equal(t, before, c.Messages())
}

func TestConversation_SealRemovesTransient(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()
	c.SetTransient("web_search", "Searching...")

	require.NoError(t, c.Seal(nil))

	for _, m := range c.Messages() {
		assert.False(t, m.IsTransient())
	}
}

func TestConversation_SealImmutability(t *testing.T) {
	// Production mode: violations no-op instead of panicking.
	c := New()

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()
	require.NoError(t, c.AppendDelta("final"))
	require.NoError(t, c.Seal(nil))

	assert.ErrorIs(t, c.AppendDelta(" more"), ErrNoOpenMessage)
	assert.ErrorIs(t, c.Seal(nil), ErrNoOpenMessage)

	msgs := c.Messages()
	assert.Equal(t, "final", msgs[len(msgs)-1].Text)
}

func TestConversation_SealWithErrorOverwritesText(t *testing.T) {
	c := New(WithStrict())

	c.AppendUserMessage("hi")
	c.OpenAssistantPlaceholder()
	require.NoError(t, c.AppendDelta("partial"))
	require.NoError(t, c.SealWithError("Sorry, something went wrong."))

	msgs := c.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Sorry, something went wrong.", last.Text)
	assert.True(t, last.Sealed)
}

func TestConversation_StrictModePanicsOnViolation(t *testing.T) {
	c := New(WithStrict())

	assert.Panics(t, func() {
		_ = c.AppendDelta("no open message")
	})
}

func TestConversation_RestoreAndClear(t *testing.T) {
	c := New(WithStrict())

	c.Restore([]model.Message{
		{ID: "1", Author: model.RoleUser, Text: "hi", Sealed: true},
		{ID: "2", Author: model.RoleAssistant, Text: "hello", Sealed: true},
	})
	require.Len(t, c.Messages(), 2)

	c.Clear()
	assert.Empty(t, c.Messages())
	assert.False(t, c.HasOpenMessage())
}
