// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/tool"
)

const maxRequestBody = 32 << 20

// AskRequest is the body of /v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	// IncludeTurns adds the whole conversation to the reply.
	IncludeTurns bool `json:"include_turns,omitempty"`
}

// AskResponse is the reply of /v1/ask.
type AskResponse struct {
	SessionID  string       `json:"session_id"`
	Status     agent.Status `json:"status"`
	Answer     string       `json:"answer"`
	ModelCalls int          `json:"model_calls"`
	ToolCalls  int          `json:"tool_calls"`
	Error      string       `json:"error,omitempty"`
	Turns      []agent.Turn `json:"turns,omitempty"`
}

// ToolCallResponse is the reply of /v1/tools/{name}.
type ToolCallResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	release, ok := s.acquire()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "too many concurrent sessions")
		return
	}
	defer release()

	res, err := s.agent.Run(r.Context(), req.Question)
	resp := AskResponse{
		SessionID:  res.SessionID,
		Status:     res.Status,
		Answer:     res.Answer,
		ModelCalls: res.ModelCalls,
		ToolCalls:  res.ToolCalls,
	}
	if req.IncludeTurns {
		resp.Turns = res.Turns
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if res.Status == agent.StatusFailed {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	release, ok := s.acquire()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "too many concurrent sessions")
		return
	}
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for turn, err := range s.agent.Stream(r.Context(), req.Question) {
		if err != nil {
			sendSSE(w, flusher, "error", errorResponse{Error: err.Error()})
			return
		}
		if !sendSSE(w, flusher, "turn", turn) {
			return
		}
	}
	sendSSE(w, flusher, "done", map[string]string{"status": string(agent.StatusFinished)})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.tools.Definitions()})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read request body: %v", err))
		return
	}

	out, err := s.tools.Dispatch(r.Context(), tool.Call{ID: "http", Name: name, Arguments: string(body)})
	if err != nil {
		var unknown *tool.UnknownToolError
		var badArgs *tool.ArgumentParseError
		switch {
		case errors.As(err, &unknown):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &badArgs):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, ToolCallResponse{Tool: name, Output: out})
}

func decodeAsk(w http.ResponseWriter, r *http.Request) (AskRequest, bool) {
	var req AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func sendSSE(w io.Writer, flusher http.Flusher, event string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to encode event", "event", event, "error", err)
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
