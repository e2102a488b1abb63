package app

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"pickwise/client/internal/model"
)

// renderer paints the conversation snapshot to the terminal incrementally.
// It is the surface's stand-in for a message list view: every change
// notification re-reads the snapshot and writes only what is new, so text
// deltas appear as they stream and tool placeholders show up as one-off
// status lines.
type renderer struct {
	mu     sync.Mutex
	w      io.Writer
	source func() []model.Message

	written   string
	transient string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) render() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source == nil {
		return
	}
	msgs := r.source()

	for _, m := range msgs {
		if m.IsTransient() && m.Text != r.transient {
			r.transient = m.Text
			fmt.Fprintf(r.w, "… %s\n", m.Text)
		}
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author == model.RoleAssistant && !m.IsTransient() && !m.Sealed {
			r.writeDeltaLocked(m.Text)
			return
		}
	}
}

// finishTurn flushes whatever the sealed message holds beyond what streamed
// and resets for the next turn. The sealed text can diverge from the
// accumulated deltas when the turn ends on the error path.
func (r *renderer) finishTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source == nil {
		return
	}
	msgs := r.source()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author == model.RoleAssistant && !m.IsTransient() {
			r.writeDeltaLocked(m.Text)
			break
		}
	}
	fmt.Fprintln(r.w)
	r.written = ""
	r.transient = ""
}

func (r *renderer) writeDeltaLocked(text string) {
	if !strings.HasPrefix(text, r.written) {
		// The message was rewritten wholesale; start the line over.
		fmt.Fprintln(r.w)
		r.written = ""
	}
	delta := text[len(r.written):]
	if delta == "" {
		return
	}
	if r.written == "" {
		fmt.Fprint(r.w, "bot> ")
	}
	fmt.Fprint(r.w, delta)
	r.written = text
}
