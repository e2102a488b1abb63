// Package devserver is a local stand-in for the Pickwise assistant backend.
// It speaks the same streaming wire protocol as the real service and scripts
// its answers from the request text, which is enough to exercise the full
// client pipeline without network access.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pickwise/client/internal/assistant"
)

// streamFrame mirrors one JSON payload of the event stream.
type streamFrame struct {
	Type      string   `json:"type"`
	Content   string   `json:"content,omitempty"`
	Message   string   `json:"message,omitempty"`
	ToolsUsed []string `json:"toolsUsed,omitempty"`
}

// Options tunes the scripted stream.
type Options struct {
	// ChunkDelay is the pause between text deltas. Zero means no pause,
	// which is what tests want.
	ChunkDelay time.Duration
}

// NewRouter builds the dev backend's router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	h := &handler{chunkDelay: opts.ChunkDelay}
	r.Post(assistant.ChatPath, h.handleChat)

	return r
}

type handler struct {
	chunkDelay time.Duration
}

// handleChat streams a scripted answer. A message containing "search"
// produces a tool-status detour, a message containing "fail" produces an
// error frame mid-stream; anything else streams a canned pick word by word.
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var req assistant.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Invalid chat request body", "error", err)
		writeFrame(w, streamFrame{Type: "error", Content: "Invalid request body."})
		return
	}

	writeFrame(w, streamFrame{Type: "start"})

	lower := strings.ToLower(req.Message)
	var toolsUsed []string
	if strings.Contains(lower, "search") {
		writeFrame(w, streamFrame{Type: "web_search", Message: "Searching for latest sports news..."})
		toolsUsed = []string{"web_search"}
		h.pause()
	}

	if strings.Contains(lower, "fail") {
		writeFrame(w, streamFrame{Type: "chunk", Content: "Let me check"})
		writeFrame(w, streamFrame{Type: "error", Content: "The assistant hit an internal error."})
		return
	}

	answer := fmt.Sprintf(
		"Based on tonight's slate, my top pick for %s is the home side to cover. Tier %s allows up to %d picks per parlay.",
		orDefault(req.Context.Screen, "your screen"), orDefault(req.Context.UserTier, "free"), req.Context.MaxPicks,
	)
	for _, word := range strings.SplitAfter(answer, " ") {
		if r.Context().Err() != nil {
			slog.Debug("Client disconnected mid-stream")
			return
		}
		writeFrame(w, streamFrame{Type: "chunk", Content: word})
		h.pause()
	}

	writeFrame(w, streamFrame{Type: "complete", ToolsUsed: toolsUsed})
}

func (h *handler) pause() {
	if h.chunkDelay > 0 {
		time.Sleep(h.chunkDelay)
	}
}

// writeFrame marshals one frame, writes it with the stream framing token and
// flushes so the client sees it immediately.
func writeFrame(w http.ResponseWriter, frame streamFrame) {
	jsonData, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to marshal stream frame", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		slog.Warn("Failed to write stream frame, client might have disconnected", "error", err)
		return
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
