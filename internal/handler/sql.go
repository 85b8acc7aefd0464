package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pgconsole/gateway/internal/apierr"
	"github.com/pgconsole/gateway/internal/broker"
	"github.com/pgconsole/gateway/internal/middleware"
	"github.com/rs/zerolog"
)

// SQLHandler serves query execution, both single-shot (JSON request/
// response) and streamed (websocket frame-per-row, PID-first per spec.md
// §4.5/§9).
type SQLHandler struct {
	broker   *broker.Broker
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewSQLHandler builds the SQL execution handler.
func NewSQLHandler(b *broker.Broker, logger zerolog.Logger) *SQLHandler {
	return &SQLHandler{
		broker: b,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type executeRequest struct {
	SQL        string `json:"sql"`
	QueryID    string `json:"query_id,omitempty"`
	SearchPath string `json:"search_path,omitempty"`
}

// Execute runs a SQL batch over a single HTTP request, buffering every
// frame into one JSON response. Suitable for short statements; long-running
// or large-result queries should use Stream instead.
func (h *SQLHandler) Execute(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, apierr.InvalidArgument("malformed request body"))
		return
	}

	var frames []broker.Frame
	err := h.broker.ExecuteSQL(r.Context(), principal, connectionID, req.QueryID, req.SearchPath, req.SQL, func(f broker.Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		WriteAPIError(w, err)
		return
	}

	WriteSuccess(w, map[string]any{"frames": frames})
}

// Stream upgrades to a websocket and streams frames as the query produces
// them: a pid frame first, then row frames, then a terminal complete or
// error frame (spec.md §9 framing contract).
func (h *SQLHandler) Stream(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	connectionID := chi.URLParam(r, "connectionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req executeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		_ = conn.WriteJSON(broker.Frame{Kind: broker.FrameError, Message: "malformed request"})
		return
	}

	writeErr := h.broker.ExecuteSQL(r.Context(), principal, connectionID, req.QueryID, req.SearchPath, req.SQL, func(f broker.Frame) {
		if werr := conn.WriteJSON(f); werr != nil {
			h.logger.Warn().Err(werr).Msg("websocket write failed")
		}
	})
	if writeErr != nil {
		_, code, message := apierr.As(writeErr)
		_ = conn.WriteJSON(broker.Frame{Kind: broker.FrameError, Message: message, Detail: code})
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(5*time.Second))
}

type cancelRequest struct {
	QueryID string `json:"query_id"`
}

// Cancel cancels the statement running for a previously issued query; the
// backend process itself stays alive.
func (h *SQLHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, apierr.InvalidArgument("malformed request body"))
		return
	}

	if err := h.broker.CancelQuery(r.Context(), principal, req.QueryID); err != nil {
		WriteAPIError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"cancelled": true})
}
