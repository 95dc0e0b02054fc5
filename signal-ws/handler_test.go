package signalws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type mockCloudWatch struct {
	cloudwatchiface.CloudWatchAPI

	mu    sync.Mutex
	names []string
}

func (m *mockCloudWatch) PutMetricDataWithContext(_ aws.Context, input *cloudwatch.PutMetricDataInput, _ ...request.Option) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, datum := range input.MetricData {
		m.names = append(m.names, aws.StringValue(datum.MetricName))
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (m *mockCloudWatch) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

func wsEvent(route, connID string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     route,
			ConnectionID: connID,
			DomainName:   "abc123.execute-api.us-east-2.amazonaws.com",
			Stage:        "prod",
		},
	}
}

func connectEvent(connID, playerID, gameID string) events.APIGatewayWebsocketProxyRequest {
	req := wsEvent(RouteConnect, connID)
	req.QueryStringParameters = map[string]string{}
	if playerID != "" {
		req.QueryStringParameters["playerId"] = playerID
	}
	if gameID != "" {
		req.QueryStringParameters["gameId"] = gameID
	}
	return req
}

func messageEvent(connID, body string) events.APIGatewayWebsocketProxyRequest {
	req := wsEvent(RouteDefault, connID)
	req.Body = body
	return req
}

func newHandler(registry Registry, poster *recordingPoster) *Handler {
	return &Handler{
		Connections: registry,
		Delivery:    poster,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return testNow },
	}
}

func TestHandlerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("connect stores the record", func(t *testing.T) {
		registry := connectiondao.NewMemory()
		h := newHandler(registry, &recordingPoster{})

		resp, err := h.HandleEvent(ctx, connectEvent("A", "HOST", "G1"))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		got, err := registry.Get(ctx, "A")
		assert.NoError(t, err)
		assert.Equal(t, connectiondao.Connection{
			ConnectionID:  "A",
			ParticipantID: connectiondao.Host,
			SessionID:     "G1",
			Endpoint:      "https://abc123.execute-api.us-east-2.amazonaws.com/prod",
			ConnectedAt:   testNow.Unix(),
			TTL:           testNow.Add(2 * time.Hour).Unix(),
		}, *got)
	})

	t.Run("connect without identifiers falls back to unknown", func(t *testing.T) {
		registry := connectiondao.NewMemory()
		h := newHandler(registry, &recordingPoster{})
		h.ConnTTL = 10 * time.Minute

		resp, _ := h.HandleEvent(ctx, connectEvent("A", "", ""))
		assert.Equal(t, 200, resp.StatusCode)

		got, _ := registry.Get(ctx, "A")
		assert.Equal(t, connectiondao.Unknown, got.ParticipantID)
		assert.Equal(t, connectiondao.Unknown, got.SessionID)
		assert.Equal(t, testNow.Add(10*time.Minute).Unix(), got.TTL)
	})

	t.Run("connect then disconnect leaves no record", func(t *testing.T) {
		registry := connectiondao.NewMemory()
		h := newHandler(registry, &recordingPoster{})

		for _, id := range []string{"A", "B", "C"} {
			resp, _ := h.HandleEvent(ctx, connectEvent(id, "P-"+id, "G1"))
			assert.Equal(t, 200, resp.StatusCode)
			resp, _ = h.HandleEvent(ctx, wsEvent(RouteDisconnect, id))
			assert.Equal(t, 200, resp.StatusCode)

			got, err := registry.Get(ctx, id)
			assert.NoError(t, err)
			assert.Nil(t, got)
		}
		assert.Equal(t, 0, registry.Count())
	})

	t.Run("disconnect of an unknown connection succeeds", func(t *testing.T) {
		h := newHandler(connectiondao.NewMemory(), &recordingPoster{})
		resp, _ := h.HandleEvent(ctx, wsEvent(RouteDisconnect, "never-connected"))
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("store unavailable", func(t *testing.T) {
		h := newHandler(brokenRegistry{err: errors.New("boom")}, &recordingPoster{})

		resp, err := h.HandleEvent(ctx, connectEvent("A", "HOST", "G1"))
		assert.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)

		resp, _ = h.HandleEvent(ctx, wsEvent(RouteDisconnect, "A"))
		assert.Equal(t, 500, resp.StatusCode)
	})

	t.Run("unknown route", func(t *testing.T) {
		h := newHandler(connectiondao.NewMemory(), &recordingPoster{})
		resp, err := h.HandleEvent(ctx, wsEvent("sendMessage", "A"))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestHandlerMessages(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Handler, *recordingPoster) {
		poster := &recordingPoster{}
		h := newHandler(connectiondao.NewMemory(), poster)
		for _, c := range [][3]string{{"A", "HOST", "G1"}, {"B", "P1", "G1"}} {
			resp, _ := h.HandleEvent(ctx, connectEvent(c[0], c[1], c[2]))
			assert.Equal(t, 200, resp.StatusCode)
		}
		return h, poster
	}

	t.Run("join reaches the host", func(t *testing.T) {
		h, poster := setup(t)

		resp, err := h.HandleEvent(ctx, messageEvent("B", `{"type":"join"}`))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		deliveries := poster.Deliveries()
		assert.Len(t, deliveries, 1)
		assert.Equal(t, "A", deliveries[0].ConnectionID)

		raw, err := deliveries[0].Envelope.Marshal()
		assert.NoError(t, err)
		assert.JSONEq(t, `{"type":"join","senderId":"P1","payload":null}`, string(raw))
	})

	t.Run("host join is answered in band", func(t *testing.T) {
		h, poster := setup(t)

		resp, _ := h.HandleEvent(ctx, messageEvent("A", `{"type":"join","targetId":"HOST"}`))
		assert.Equal(t, 200, resp.StatusCode)

		var body responseBody
		assert.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
		assert.Equal(t, "Error sent to client", body.Message)
		assert.Equal(t, CodeInvalidJoin, errorCode(t, poster.Deliveries()[0].Envelope))
	})

	t.Run("answer from host to player", func(t *testing.T) {
		h, poster := setup(t)

		resp, _ := h.HandleEvent(ctx, messageEvent("A", `{"type":"answer","targetId":"P1","payload":{"sdp":"x","type":"answer"}}`))
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, "B", poster.Deliveries()[0].ConnectionID)
		assert.Equal(t, connectiondao.Host, poster.Deliveries()[0].Envelope.SenderID)
	})

	t.Run("missing target is a bad request", func(t *testing.T) {
		h, poster := setup(t)

		resp, _ := h.HandleEvent(ctx, messageEvent("B", `{"type":"offer","payload":{}}`))
		assert.Equal(t, 400, resp.StatusCode)
		assert.Len(t, poster.Deliveries(), 0)
	})

	t.Run("unknown target is not found", func(t *testing.T) {
		h, poster := setup(t)

		resp, _ := h.HandleEvent(ctx, messageEvent("B", `{"type":"ice-candidate","targetId":"P9","payload":{"candidate":"c"}}`))
		assert.Equal(t, 404, resp.StatusCode)
		assert.Len(t, poster.Deliveries(), 0)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		h, _ := setup(t)

		for _, body := range []string{``, `{`, `{"targetId":"P1"}`} {
			resp, _ := h.HandleEvent(ctx, messageEvent("B", body))
			assert.Equal(t, 400, resp.StatusCode)
		}
	})

	t.Run("message from an unregistered connection", func(t *testing.T) {
		h, _ := setup(t)

		resp, _ := h.HandleEvent(ctx, messageEvent("Z", `{"type":"join"}`))
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("message from a connection without a game", func(t *testing.T) {
		h, _ := setup(t)

		resp, _ := h.HandleEvent(ctx, connectEvent("C", "P2", ""))
		assert.Equal(t, 200, resp.StatusCode)
		resp, _ = h.HandleEvent(ctx, messageEvent("C", `{"type":"join"}`))
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("delivery failure hides internals", func(t *testing.T) {
		h, poster := setup(t)
		poster.fail = map[string]error{"A": errors.New("throttled")}

		resp, _ := h.HandleEvent(ctx, messageEvent("B", `{"type":"join"}`))
		assert.Equal(t, 500, resp.StatusCode)

		var body responseBody
		assert.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
		assert.Equal(t, "Internal Server Error", body.Error)
	})

	t.Run("metrics", func(t *testing.T) {
		h, poster := setup(t)
		cw := &mockCloudWatch{}
		h.Metrics = signalcli.NewMetrics(signalcli.Service{Name: "signaling"}, cw)
		poster.fail = map[string]error{"A": ErrConnectionGone}

		h.HandleEvent(ctx, messageEvent("A", `{"type":"offer","targetId":"P1"}`))
		h.HandleEvent(ctx, messageEvent("B", `{"type":"join"}`))

		names := cw.Names()
		assert.Contains(t, names, string(signalcli.MessageRoutedMetric))
		assert.Contains(t, names, string(signalcli.DeliveryFailedMetric))
		assert.Contains(t, names, string(signalcli.RouteFailedMetric))
		assert.Contains(t, names, string(signalcli.ResponseTimeMetric))
	})
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		nil:                    200,
		ErrUnknownRoute:        400,
		ErrInvalidMessage:      400,
		ErrSenderNotRegistered: 400,
		ErrSenderNotInSession:  400,
		ErrMissingTarget:       400,
		ErrTargetNotFound:      404,
		ErrStoreUnavailable:    500,
		ErrDeliveryFailed:      500,
		errors.New("surprise"): 500,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), "%v", err)
	}
}
