package signalws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// LocalStage is the stage name reported in events synthesized by Gateway.
const LocalStage = "local"

// Gateway stands in for API Gateway when running in console mode. It accepts
// WebSocket connections, feeds $connect, $default and $disconnect events to
// the Handler, and delivers pushes to the sockets it holds.
type Gateway struct {
	handler  *Handler
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	sockets map[string]*socket
}

type socket struct {
	mu   sync.Mutex // gorilla allows one concurrent writer
	conn *websocket.Conn
}

// NewGateway wires handler to deliver through the returned Gateway.
func NewGateway(handler *Handler) *Gateway {
	g := &Gateway{
		handler: handler,
		logger:  handler.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sockets: map[string]*socket{},
	}
	handler.Delivery = g
	return g
}

// Routes mounts the WebSocket endpoint at /ws.
func (g *Gateway) Routes(router chi.Router) {
	router.Get("/ws", g.ServeHTTP)
}

func (g *Gateway) PosterFor(string) Poster {
	return g
}

// Post writes data to a locally held socket.
func (g *Gateway) Post(_ context.Context, connID string, data []byte) error {
	g.mu.RLock()
	s, ok := g.sockets[connID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("local connection %v: %w", connID, ErrConnectionGone)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing to local connection %v: %w", connID, err)
	}
	return nil
}

// Len returns the number of open sockets.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sockets)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	connID := uuid.NewString()
	logger := g.logger.With().Str("connection_id", connID).Logger()
	ctx := logger.WithContext(context.Background())

	connect := g.event(req, RouteConnect, connID)
	query := req.URL.Query()
	connect.QueryStringParameters = map[string]string{}
	for _, key := range []string{"playerId", "gameId"} {
		if v := query.Get(key); v != "" {
			connect.QueryStringParameters[key] = v
		}
	}

	resp, _ := g.handler.HandleEvent(ctx, connect)
	if resp.StatusCode != http.StatusOK {
		http.Error(w, resp.Body, resp.StatusCode)
		return
	}

	conn, err := g.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		g.handler.HandleEvent(ctx, g.event(req, RouteDisconnect, connID))
		return
	}

	g.mu.Lock()
	g.sockets[connID] = &socket{conn: conn}
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.sockets, connID)
		g.mu.Unlock()
		conn.Close()
		g.handler.HandleEvent(ctx, g.event(req, RouteDisconnect, connID))
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		event := g.event(req, RouteDefault, connID)
		event.Body = string(data)
		if resp, _ := g.handler.HandleEvent(ctx, event); resp.StatusCode != http.StatusOK {
			logger.Debug().Int("status", resp.StatusCode).Str("body", resp.Body).Msg("message not routed")
		}
	}
}

func (g *Gateway) event(req *http.Request, route, connID string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     route,
			ConnectionID: connID,
			DomainName:   req.Host,
			Stage:        LocalStage,
		},
	}
}
