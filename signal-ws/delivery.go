package signalws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// Poster pushes a serialized envelope to one live connection. Implementations
// return an error wrapping ErrConnectionGone when the connection no longer
// exists at the transport.
type Poster interface {
	Post(ctx context.Context, connectionID string, data []byte) error
}

// PosterSource resolves the delivery capability for the endpoint an event
// arrived on.
type PosterSource interface {
	PosterFor(endpoint string) Poster
}

// Endpoint returns the management API endpoint for the stage that delivered req.
func Endpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}

// ManagementClients caches API Gateway Management API clients by endpoint for
// the lifetime of a Lambda worker.
type ManagementClients struct {
	// NewClient overrides client construction; used by tests.
	NewClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func (m *ManagementClients) PosterFor(endpoint string) Poster {
	return managementPoster{client: m.client(endpoint)}
}

// Probe checks that a connection is still open at the given endpoint.
func (m *ManagementClients) Probe(ctx context.Context, endpoint, connID string) error {
	_, err := m.client(endpoint).GetConnectionWithContext(ctx, &apigatewaymanagementapi.GetConnectionInput{
		ConnectionId: aws.String(connID),
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("%w: %v", ErrConnectionGone, err)
		}
		return fmt.Errorf("probing connection %v: %w", connID, err)
	}
	return nil
}

func (m *ManagementClients) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	m.mu.RLock()
	if client, ok := m.clients[endpoint]; ok {
		m.mu.RUnlock()
		return client
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := m.clients[endpoint]; ok {
		return client
	}

	if m.clients == nil {
		m.clients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	var client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	if m.NewClient != nil {
		client = m.NewClient(endpoint)
	} else {
		sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
		client = apigatewaymanagementapi.New(sess)
	}
	m.clients[endpoint] = client
	return client
}

type managementPoster struct {
	client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func (p managementPoster) Post(ctx context.Context, connID string, data []byte) error {
	_, err := p.client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connID),
		Data:         data,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("%w: %v", ErrConnectionGone, err)
		}
		return fmt.Errorf("posting to connection %v: %w", connID, err)
	}
	return nil
}

// isGoneException checks if the error is a GoneException (HTTP 410),
// indicating the WebSocket connection no longer exists.
func isGoneException(err error) bool {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) && rf.StatusCode() == http.StatusGone {
		return true
	}
	var ae awserr.Error
	if errors.As(err, &ae) && ae.Code() == apigatewaymanagementapi.ErrCodeGoneException {
		return true
	}
	return strings.Contains(err.Error(), "GoneException")
}
