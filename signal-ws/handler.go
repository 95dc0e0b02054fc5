package signalws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

// DefaultConnTTL bounds how long a record outlives a connection whose
// disconnect event was lost.
const DefaultConnTTL = 2 * time.Hour

// Handler handles API Gateway WebSocket events for the signaling relay.
type Handler struct {
	Connections Registry
	Delivery    PosterSource
	Logger      zerolog.Logger
	Metrics     *signalcli.Metrics
	ConnTTL     time.Duration // TTL for connection records (default 2 hours)
	Now         func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
// Failures are reported through the status code; the returned error is always
// nil so that one bad message never fails the Lambda invocation.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	route := req.RequestContext.RouteKey
	connID := req.RequestContext.ConnectionID

	logger := h.Logger.With().
		Str("connection_id", connID).
		Str("route", route).
		Logger()
	ctx = logger.WithContext(ctx)

	var (
		err error
		ok  string
	)
	switch route {
	case RouteConnect:
		ok = "Connected successfully"
		err = h.OnConnect(ctx, connID, req.QueryStringParameters["playerId"], req.QueryStringParameters["gameId"], Endpoint(req))
	case RouteDisconnect:
		ok = "Disconnected successfully"
		err = h.OnDisconnect(ctx, connID)
	case RouteDefault:
		ok, err = h.handleMessage(ctx, req)
	default:
		err = fmt.Errorf("route %q: %w", route, ErrUnknownRoute)
	}

	h.Metrics.Timing(ctx, signalcli.ResponseTimeMetric, start, map[signalcli.DimensionName]string{
		signalcli.OperationNameDimension: route,
	})
	return h.respond(ctx, ok, err), nil
}

// OnConnect registers a new connection. Acceptance is unconditional: missing
// identifiers fall back to connectiondao.Unknown and duplicate hosts are not
// checked.
func (h *Handler) OnConnect(ctx context.Context, connID, participantID, sessionID, endpoint string) error {
	if participantID == "" {
		participantID = connectiondao.Unknown
	}
	if sessionID == "" {
		sessionID = connectiondao.Unknown
	}

	ttl := h.ConnTTL
	if ttl == 0 {
		ttl = DefaultConnTTL
	}

	now := h.now()
	conn := connectiondao.Connection{
		ConnectionID:  connID,
		ParticipantID: participantID,
		SessionID:     sessionID,
		Endpoint:      endpoint,
		ConnectedAt:   now.Unix(),
		TTL:           now.Add(ttl).Unix(),
	}

	logger := zerolog.Ctx(ctx).With().
		Str("participant_id", participantID).
		Str("session_id", sessionID).
		Logger()

	if err := h.Connections.Put(ctx, conn); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if sessionID == connectiondao.Unknown {
		logger.Warn().Msg("connection has no game id")
	}

	h.Metrics.Event(ctx, signalcli.ConnectionOpenedMetric)
	logger.Info().Msg("connection established")
	return nil
}

// OnDisconnect removes the connection's record. Peers are not notified; they
// find out on their next routing attempt.
func (h *Handler) OnDisconnect(ctx context.Context, connID string) error {
	if err := h.Connections.Delete(ctx, connID); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	h.Metrics.Event(ctx, signalcli.ConnectionClosedMetric)
	zerolog.Ctx(ctx).Info().Msg("connection closed")
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (string, error) {
	msg, err := ParseMessage(req.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	logger := zerolog.Ctx(ctx).With().
		Str("type", string(msg.Type)).
		Str("target_id", msg.TargetID).
		Logger()
	ctx = logger.WithContext(ctx)

	router := Router{Connections: h.Connections, Now: h.Now}
	outcome, err := router.Route(ctx, h.Delivery.PosterFor(Endpoint(req)), req.RequestContext.ConnectionID, *msg)
	if err != nil {
		return "", err
	}

	logger = logger.With().
		Str("session_id", outcome.Sender.SessionID).
		Str("participant_id", outcome.Sender.ParticipantID).
		Str("recipient", outcome.Recipient).
		Logger()

	if outcome.Rejected {
		h.Metrics.Event(ctx, signalcli.JoinRejectedMetric)
		logger.Info().RawJSON("payload", outcome.Envelope.Payload).Msg("join rejected")
		return "Error sent to client", nil
	}

	h.Metrics.Event(ctx, signalcli.MessageRoutedMetric)
	logger.Info().Msg("message sent")
	return "Message sent successfully", nil
}

type responseBody struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) respond(ctx context.Context, ok string, err error) events.APIGatewayProxyResponse {
	status := StatusCode(err)
	body := responseBody{Message: ok}

	if err != nil {
		logger := zerolog.Ctx(ctx)
		body = responseBody{Error: err.Error()}
		reason := map[signalcli.DimensionName]string{signalcli.ReasonDimension: Reason(err)}
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Int("status", status).Msg("failed to handle event")
			body.Error = http.StatusText(status)
			if errors.Is(err, ErrDeliveryFailed) {
				h.Metrics.Event(ctx, signalcli.DeliveryFailedMetric)
			}
		} else {
			logger.Warn().Err(err).Int("status", status).Msg("rejected event")
		}
		h.Metrics.Event(ctx, signalcli.RouteFailedMetric, reason)
	}

	raw, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(raw),
	}
}
