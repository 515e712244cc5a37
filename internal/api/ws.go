package api

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/interview-probe/internal/middleware"
)

// wsError is the frame sent in place of a ChatResponse when a turn fails.
type wsError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// HandleWebSocket handles GET /ws/chat. Each text frame carries one
// ChatRequest and is answered with one ChatResponse or wsError frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.cfg.CORSOrigins),
	})
	if err != nil {
		h.logger.Warn("failed to accept websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.cfg.HTTP.MaxRequestBodySize)

	ctx := r.Context()
	clientKey := middleware.ClientIP(r)
	requestID := chiMiddleware.GetReqID(ctx)

	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var reply any
		if !h.limiter.Allow(clientKey) {
			reply = wsError{Error: "rate limit exceeded", Status: http.StatusTooManyRequests}
		} else if resp, err := h.chat(ctx, &req, "chat_ws", requestID); err != nil {
			status, msg := h.errorStatus(err, req.SessionID)
			reply = wsError{Error: msg, Status: status}
		} else {
			reply = resp
		}

		if err := h.writeFrame(ctx, ws, reply); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

// originPatterns turns CORS origins into host patterns for websocket.Accept.
func originPatterns(origins []string) []string {
	if slices.Contains(origins, "*") {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		} else {
			out = append(out, o)
		}
	}
	return out
}
