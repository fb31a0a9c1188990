package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/chat"
	"github.com/fraudflow-dev/fraudflow/internal/flow"
	"github.com/fraudflow-dev/fraudflow/internal/observability"
	"github.com/fraudflow-dev/fraudflow/internal/session"
	"github.com/fraudflow-dev/fraudflow/internal/stream"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"user_query"`
}

// handleChat runs one turn and streams the rendered reply as it is
// produced. The turn is committed to the session whole or not at all;
// a client disconnect does not abort the flow, which runs to
// completion and still commits.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, NewAppError(http.StatusBadRequest, "bad_request", "Malformed request body."))
		return
	}
	if req.Query == "" {
		writeError(w, r, NewAppError(http.StatusBadRequest, "empty_query", "Query cannot be empty."))
		return
	}
	if req.SessionID == "" {
		writeError(w, r, NewAppError(http.StatusBadRequest, "empty_session", "Session id cannot be empty."))
		return
	}

	// Serialize turns on the same session; distinct sessions proceed
	// in parallel.
	release := s.sessions.Acquire(req.SessionID)
	defer release()

	// The flow must survive a client disconnect, so it runs on a
	// context detached from the request's cancellation.
	ctx := context.WithoutCancel(r.Context())

	if _, err := s.sessions.GetOrCreate(ctx, req.SessionID); err != nil {
		writeError(w, r, err)
		return
	}
	turns, err := s.sessions.History(ctx, req.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	queue := stream.NewQueue()
	assembler := stream.NewAssembler()

	var turn *flow.TurnResult
	var flowErr error
	go func() {
		defer queue.Done()
		turn, flowErr = s.flow.Run(ctx, req.Query, historyMessages(turns), func(c *chat.StreamingChunk) {
			if rendered := assembler.Feed(c); rendered != "" {
				queue.Push([]byte(rendered))
				observability.RecordStreamChunk()
			}
		})
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	// Drain until the producer signals completion. A write failure
	// (client gone) stops writing but not draining: FIFO order and
	// the commit below are preserved either way.
	wrote := false
	writable := true
	for {
		b, ok := queue.Next()
		if !ok {
			break
		}
		if !writable {
			continue
		}
		if _, err := w.Write(b); err != nil {
			writable = false
			continue
		}
		wrote = true
		if flusher != nil {
			flusher.Flush()
		}
	}

	if flowErr != nil {
		if !wrote {
			writeError(w, r, flowErr)
			return
		}
		_, _ = io.WriteString(w, "\n\n[ERROR]\nThe turn could not be completed.")
		return
	}

	answer := assembler.Final()
	if answer == "" {
		answer = turn.Answer
	}
	if answer == "" {
		return
	}
	if !wrote && writable {
		_, _ = io.WriteString(w, answer)
	}

	if err := s.sessions.AppendTurn(ctx, req.SessionID, session.Turn{
		Question: req.Query,
		Answer:   answer,
		At:       time.Now().UTC(),
	}); err != nil {
		log.Printf("append turn for session %s: %v", req.SessionID, err)
		return
	}
	if err := s.sessions.RecordTokens(ctx, req.SessionID, turn.Usage); err != nil {
		log.Printf("record tokens for session %s: %v", req.SessionID, err)
	}
}

// handleHistory returns the session's retained turns as role/content
// pairs. Unknown sessions yield an empty history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, r, NewAppError(http.StatusBadRequest, "empty_session", "Session id cannot be empty."))
		return
	}

	turns, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	history := make([]entry, 0, len(turns)*2)
	for _, t := range turns {
		history = append(history,
			entry{Role: string(chat.RoleUser), Content: t.Question},
			entry{Role: string(chat.RoleAssistant), Content: t.Answer},
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleUsage returns the session's accumulated token usage.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, r, NewAppError(http.StatusBadRequest, "empty_session", "Session id cannot be empty."))
		return
	}

	usage, err := s.sessions.Usage(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": usage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// historyMessages flattens retained turns into the message sequence
// fed to the flow.
func historyMessages(turns []session.Turn) []chat.Message {
	msgs := make([]chat.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs, chat.User(t.Question), chat.Assistant(t.Answer))
	}
	return msgs
}
