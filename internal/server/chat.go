// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/aidev/internal/chat"
	"github.com/jeranaias/aidev/internal/export"
	"github.com/jeranaias/aidev/internal/logging"
	"github.com/jeranaias/aidev/internal/preview"
	"github.com/jeranaias/aidev/internal/tools"
)

// ChatRequest is the body of POST /api/projects/{id}/chat.
type ChatRequest struct {
	Message string      `json:"message"`
	Brief   *chat.Brief `json:"brief,omitempty"`
}

// ChatResult is the payload of the final "result" event.
type ChatResult struct {
	Message    chat.Message `json:"message"`
	Provider   string       `json:"provider"`
	Failed     bool         `json:"failed"`
	Results    []ToolResult `json:"results,omitempty"`
	PreviewURL string       `json:"previewUrl,omitempty"`
}

// ToolResult reports one executed tool call.
type ToolResult struct {
	Name    string `json:"name"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
}

func toolResults(in []tools.Result) []ToolResult {
	out := make([]ToolResult, 0, len(in))
	for _, r := range in {
		out = append(out, ToolResult{Name: r.Name, Output: r.Output, Success: r.Success})
	}
	return out
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	msgs, err := s.app.Chat.History().Load(r.Context(), r.PathValue("id"))
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookupProject(w, r); !ok {
		return
	}
	msgs, err := s.app.Chat.History().Clear(r.Context(), r.PathValue("id"))
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleChatExport serves the chat as a download. ?format= picks markdown
// (default), html or json.
func (s *Server) handleChatExport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	exp, err := export.ForFormat(r.URL.Query().Get("format"), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := s.app.Chat.History().Load(r.Context(), p.ID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	t := &export.Transcript{ProjectID: p.ID, Project: p.Name, Files: p.Paths(), Messages: msgs, ExportedAt: time.Now()}
	data, err := exp.Export(t)
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(t, exp)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// sseWriter writes Server-Sent Events, committing the stream headers on
// the first event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (e *sseWriter) start() {
	if e.started {
		return
	}
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	e.started = true
}

func (e *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.start()
	if event != "" {
		if _, err := fmt.Fprintf(e.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// handleChatSend streams one exchange. Each partial reply is a data event
// carrying the accumulated content; the exchange ends with a "result"
// event. Errors raised before the first event are plain JSON replies.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	var body ChatRequest
	if !decodeBody(w, r, &body) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sse := &sseWriter{w: w, flusher: flusher}
	ctx := r.Context()
	ex, err := s.app.Chat.Send(ctx, chat.Request{ProjectID: p.ID, Text: body.Message, Brief: body.Brief},
		func(content string) {
			if err := sse.send("", map[string]string{"content": content}); err != nil {
				logging.WithContext(ctx).Debug("sse write failed", zap.Error(err))
			}
		})

	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, chat.ErrExchangeInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil && !sse.started:
		internalError(w, r, err)
		return
	case err != nil:
		logging.WithContext(ctx).Error("chat exchange failed", zap.Error(err))
		_ = sse.send("error", ErrorResponse{Error: "request processing failed"})
		return
	}

	result := ChatResult{
		Message:  ex.Assistant,
		Provider: ex.Provider,
		Failed:   ex.Failed,
		Results:  toolResults(ex.Results),
	}
	if cur, ok := s.app.Projects.Project(p.ID); ok {
		result.PreviewURL = preview.URL(cur.PreviewHandle)
	}
	if err := sse.send("result", result); err != nil {
		logging.WithContext(ctx).Debug("sse write failed", zap.Error(err))
	}
}
