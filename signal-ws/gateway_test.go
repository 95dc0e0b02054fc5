package signalws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func serve(gateway *Gateway) *httptest.Server {
	router := chi.NewRouter()
	gateway.Routes(router)
	return httptest.NewServer(router)
}

func TestGateway(t *testing.T) {
	t.Run("join and answer over local sockets", func(t *testing.T) {
		registry := connectiondao.NewMemory()
		gateway := NewGateway(&Handler{Connections: registry, Logger: zerolog.Nop()})
		server := serve(gateway)
		defer server.Close()

		host := dial(t, server, "playerId=HOST&gameId=G1")
		waitFor(t, func() bool { return gateway.Len() == 1 })
		player := dial(t, server, "playerId=P1&gameId=G1")
		waitFor(t, func() bool { return gateway.Len() == 2 })
		assert.Equal(t, 2, registry.Count())

		assert.NoError(t, player.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)))

		host.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := host.ReadMessage()
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"join","senderId":"P1","payload":null}`, string(data))

		assert.NoError(t, host.WriteMessage(websocket.TextMessage, []byte(`{"type":"answer","targetId":"P1","payload":{"sdp":"v=0"}}`)))

		player.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err = player.ReadMessage()
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"answer","senderId":"HOST","payload":{"sdp":"v=0"}}`, string(data))
	})

	t.Run("close removes the record", func(t *testing.T) {
		registry := connectiondao.NewMemory()
		gateway := NewGateway(&Handler{Connections: registry, Logger: zerolog.Nop()})
		server := serve(gateway)
		defer server.Close()

		conn := dial(t, server, "playerId=HOST&gameId=G1")
		waitFor(t, func() bool { return gateway.Len() == 1 })
		conn.Close()

		waitFor(t, func() bool { return gateway.Len() == 0 && registry.Count() == 0 })
	})

	t.Run("failed connect refuses the upgrade", func(t *testing.T) {
		gateway := NewGateway(&Handler{Connections: brokenRegistry{err: errors.New("boom")}, Logger: zerolog.Nop()})
		server := serve(gateway)
		defer server.Close()

		url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?playerId=HOST&gameId=G1"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		assert.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, 0, gateway.Len())
	})

	t.Run("unknown socket is gone", func(t *testing.T) {
		gateway := NewGateway(&Handler{Connections: connectiondao.NewMemory(), Logger: zerolog.Nop()})
		err := gateway.Post(context.Background(), "missing", []byte(`{}`))
		assert.True(t, errors.Is(err, ErrConnectionGone))
	})
}
