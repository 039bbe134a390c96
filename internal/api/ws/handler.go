// Package ws mirrors the SSE summary stream over WebSocket for clients
// that keep a bidirectional connection open.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quillfeed/backend/internal/degrade"
	"github.com/quillfeed/backend/internal/infrastructure/logging"
	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
	"github.com/quillfeed/backend/internal/stream"
	"github.com/quillfeed/backend/internal/summary"
	"github.com/quillfeed/backend/internal/upstream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const summaryTimeout = 2 * time.Minute

// Message is one client request frame.
type Message struct {
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
}

// Handler manages WebSocket connections.
type Handler struct {
	producer *summary.Producer
	client   *upstream.Client
	sessions *stream.Limiter
	sources  map[string]string
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(producer *summary.Producer, client *upstream.Client, sessions *stream.Limiter, sources map[string]string, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		producer: producer,
		client:   client,
		sessions: sessions,
		sources:  sources,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleConnection handles WebSocket upgrade and messages.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	reqCtx := c.Request.Context()

	h.send(conn, gin.H{
		"type":    "system",
		"message": "connected to quillfeed stream",
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			h.logger.Debug("websocket read ended", zap.Error(err))
			break
		}

		switch msg.Type {
		case "summary":
			h.handleSummary(conn, msg, reqCtx)
		case "ping":
			h.send(conn, gin.H{"type": "pong"})
		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

func (h *Handler) handleSummary(conn *websocket.Conn, msg Message, reqCtx context.Context) {
	source := msg.Source
	if source == "" {
		source = "news"
	}
	url, ok := h.sources[source]
	if !ok {
		h.sendError(conn, "unknown source: "+source)
		return
	}

	if !h.sessions.Acquire() {
		h.sendError(conn, "too many active streams")
		return
	}
	defer h.sessions.Release()

	if h.metrics != nil {
		h.metrics.SessionOpened()
		defer h.metrics.SessionClosed()
	}

	ctx, cancel := context.WithTimeout(reqCtx, summaryTimeout)
	defer cancel()

	events := h.producer.Events(ctx, ctx.Done(), "feed:"+source, h.fetcher(source, url))

	for ev := range events {
		if h.metrics != nil {
			h.metrics.RecordEventSent()
		}
		err := h.send(conn, gin.H{
			"type":      ev.Type,
			"content":   ev.Data,
			"timestamp": time.Now().Unix(),
		})
		if err != nil {
			return
		}
		if ev.Terminal() {
			return
		}
	}

	h.send(conn, gin.H{
		"type":      stream.EventDone,
		"timestamp": time.Now().Unix(),
	})
}

func (h *Handler) fetcher(source, url string) degrade.Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		start := time.Now()
		data, err := h.client.Get(ctx, url)
		if h.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			h.metrics.RecordFetch(source, outcome, time.Since(start))
		}
		return data, err
	}
}

func (h *Handler) send(conn *websocket.Conn, data interface{}) error {
	return conn.WriteJSON(data)
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) error {
	return h.send(conn, gin.H{
		"type":      stream.EventError,
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}
