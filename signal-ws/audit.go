package signalws

import (
	"context"
	"fmt"
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	signalddb "github.com/Michael-R-Dickinson/table-poker/signal-ddb"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/rs/zerolog"
)

// SessionQuerier looks up the records of one game.
type SessionQuerier interface {
	QueryBySession(ctx context.Context, sessionID string) ([]connectiondao.Connection, error)
}

// Auditor watches the connections table's change stream. Connects are never
// refused, so a second host in a game is only detected here after the fact.
type Auditor struct {
	Connections SessionQuerier
	Metrics     *signalcli.Metrics
	Now         func() time.Time
}

func (a *Auditor) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// OnInsert checks a newly connected host against the other records of its game.
func (a *Auditor) OnInsert(ctx context.Context, item map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := signalddb.ParseItem(item, &conn); err != nil {
		return err
	}
	if !conn.IsHost() || conn.SessionID == connectiondao.Unknown {
		return nil
	}

	conns, err := a.Connections.QueryBySession(ctx, conn.SessionID)
	if err != nil {
		return fmt.Errorf("querying game %v: %w", conn.SessionID, err)
	}

	now := a.now()
	var hosts []string
	for _, c := range conns {
		if c.IsHost() && !c.Expired(now) {
			hosts = append(hosts, c.ConnectionID)
		}
	}
	if len(hosts) > 1 {
		zerolog.Ctx(ctx).Warn().
			Str("session_id", conn.SessionID).
			Strs("hosts", hosts).
			Msg("game has more than one host connected")
		a.Metrics.Event(ctx, signalcli.DuplicateHostMetric)
	}
	return nil
}

// OnRemove tells TTL expiry apart from an explicit disconnect.
func (a *Auditor) OnRemove(ctx context.Context, item map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := signalddb.ParseItem(item, &conn); err != nil {
		return err
	}

	logger := zerolog.Ctx(ctx).With().
		Str("connection_id", conn.ConnectionID).
		Str("session_id", conn.SessionID).
		Str("participant_id", conn.ParticipantID).
		Logger()

	if conn.Expired(a.now()) {
		logger.Info().Msg("connection record expired")
		a.Metrics.Event(ctx, signalcli.ConnectionExpiredMetric)
		return nil
	}
	logger.Debug().Msg("connection record removed")
	a.Metrics.Event(ctx, signalcli.ConnectionClosedMetric)
	return nil
}
