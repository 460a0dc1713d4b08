package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/config"
)

// Gateway serves a WebSocket endpoint for local clients. Each connection is
// one conversation: the client sends {"content":"..."} frames, the server
// streams back {"type":"token"} frames while the reply is generated and
// finishes with one {"type":"reply"} frame.
type Gateway struct {
	cfg config.GatewayConfig
	bus *bus.MessageBus

	mu    sync.Mutex
	conns map[string]*gatewayConn
}

// gatewayConn serializes writes; gorilla/websocket allows one writer at a
// time per connection.
type gatewayConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *gatewayConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// The gateway binds loopback by default; no origin policy.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewGateway creates a Gateway channel.
func NewGateway(cfg config.GatewayConfig, b *bus.MessageBus) *Gateway {
	return &Gateway{
		cfg:   cfg,
		bus:   b,
		conns: make(map[string]*gatewayConn),
	}
}

func (g *Gateway) Name() string { return "gateway" }

// Start serves the WebSocket endpoint until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway: %w", err)
	}
	return ctx.Err()
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: upgrade failed", "err", err)
		return
	}

	id := uuid.NewString()[:8]
	conn := &gatewayConn{ws: ws}
	g.mu.Lock()
	g.conns[id] = conn
	g.mu.Unlock()
	slog.Info("gateway: client connected", "chat_id", id)

	defer func() {
		g.mu.Lock()
		delete(g.conns, id)
		g.mu.Unlock()
		ws.Close()
		slog.Info("gateway: client disconnected", "chat_id", id)
	}()

	_ = conn.writeJSON(map[string]string{"type": "hello", "chatId": id})

	for {
		var frame struct {
			Content string `json:"content"`
		}
		if err := ws.ReadJSON(&frame); err != nil {
			return
		}
		if strings.TrimSpace(frame.Content) == "" {
			continue
		}
		g.bus.PublishInbound(bus.NewInboundMessage("gateway", id, id, frame.Content))
	}
}

// Send forwards a frame to the owning connection. Frames for connections
// that have gone away are dropped.
func (g *Gateway) Send(msg bus.OutboundMessage) error {
	g.mu.Lock()
	conn, ok := g.conns[msg.ChatID]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	kind := "reply"
	if msg.Token {
		kind = "token"
	}
	return conn.writeJSON(map[string]string{"type": kind, "content": msg.Content})
}
