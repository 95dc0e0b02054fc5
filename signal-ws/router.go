package signalws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/rs/zerolog"
)

// Registry is the connection store shared by every invocation.
type Registry interface {
	Put(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (*connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) error
	QueryBySession(ctx context.Context, sessionID string) ([]connectiondao.Connection, error)
}

// Outcome describes what a successful routing decision delivered.
type Outcome struct {
	Sender    connectiondao.Connection
	Recipient string // connection the envelope was pushed to
	Envelope  Envelope
	Rejected  bool // join answered with an error envelope to the sender
}

// Router decides the single recipient of each inbound message. It holds no
// state between invocations and never writes the registry on the happy path.
type Router struct {
	Connections Registry
	Now         func() time.Time
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Route resolves the recipient of msg sent on senderConnID and pushes the
// envelope through poster. The two join rejections (no host, host joining its
// own game) are delivered to the sender and reported as success.
func (r *Router) Route(ctx context.Context, poster Poster, senderConnID string, msg Inbound) (Outcome, error) {
	now := r.now()

	sender, err := r.Connections.Get(ctx, senderConnID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if sender == nil || sender.Expired(now) {
		return Outcome{}, fmt.Errorf("connection %v: %w", senderConnID, ErrSenderNotRegistered)
	}

	outcome := Outcome{Sender: *sender}
	if sender.SessionID == "" || sender.SessionID == connectiondao.Unknown {
		return outcome, fmt.Errorf("connection %v: %w", senderConnID, ErrSenderNotInSession)
	}

	conns, err := r.Connections.QueryBySession(ctx, sender.SessionID)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	peers := livePeers(conns, *sender, now)

	if msg.Type == MsgJoin {
		host, ok := findParticipant(peers, connectiondao.Host)
		switch {
		case !ok:
			return r.reject(ctx, poster, outcome, HostNotFoundEnvelope())
		case host.ConnectionID == sender.ConnectionID:
			return r.reject(ctx, poster, outcome, InvalidJoinEnvelope())
		}
		outcome.Recipient = host.ConnectionID
	} else {
		if msg.TargetID == "" {
			return outcome, fmt.Errorf("%v message: %w", msg.Type, ErrMissingTarget)
		}
		target, ok := findParticipant(peers, msg.TargetID)
		if !ok {
			return outcome, fmt.Errorf("player %v in game %v: %w", msg.TargetID, sender.SessionID, ErrTargetNotFound)
		}
		outcome.Recipient = target.ConnectionID
	}

	outcome.Envelope = Forward(msg, sender.ParticipantID)
	data, err := outcome.Envelope.Marshal()
	if err != nil {
		return outcome, err
	}
	if err := poster.Post(ctx, outcome.Recipient, data); err != nil {
		if errors.Is(err, ErrConnectionGone) {
			r.forget(ctx, outcome.Recipient)
		}
		return outcome, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return outcome, nil
}

func (r *Router) reject(ctx context.Context, poster Poster, outcome Outcome, env Envelope) (Outcome, error) {
	outcome.Recipient = outcome.Sender.ConnectionID
	outcome.Envelope = env
	outcome.Rejected = true

	logger := zerolog.Ctx(ctx)
	data, err := env.Marshal()
	if err != nil {
		logger.Error().Err(err).Msg("failed to build error envelope")
		return outcome, nil
	}
	if err := poster.Post(ctx, outcome.Recipient, data); err != nil {
		logger.Warn().Err(err).Str("target", outcome.Recipient).Msg("failed to send error message")
	}
	return outcome, nil
}

// forget drops the record of a connection the transport reported gone. It is
// cleanup only; the failed delivery is not retried.
func (r *Router) forget(ctx context.Context, connID string) {
	logger := zerolog.Ctx(ctx)
	logger.Info().Str("target", connID).Msg("connection gone, cleaning up")
	if err := r.Connections.Delete(ctx, connID); err != nil {
		logger.Error().Err(err).Str("target", connID).Msg("failed to delete gone connection")
	}
}

// livePeers drops expired records and substitutes the sender's strongly
// consistent record, so a session index that lags the sender's own connect
// still sees the sender.
func livePeers(conns []connectiondao.Connection, sender connectiondao.Connection, now time.Time) []connectiondao.Connection {
	peers := make([]connectiondao.Connection, 0, len(conns)+1)
	for _, conn := range conns {
		if conn.ConnectionID == sender.ConnectionID || conn.Expired(now) {
			continue
		}
		peers = append(peers, conn)
	}
	return append(peers, sender)
}

// findParticipant returns the peer with the given participant ID. When several
// peers claim the same ID (two hosts racing to connect), the lowest connection
// ID wins so repeated lookups agree.
func findParticipant(peers []connectiondao.Connection, participantID string) (connectiondao.Connection, bool) {
	var (
		found connectiondao.Connection
		ok    bool
	)
	for _, peer := range peers {
		if peer.ParticipantID != participantID {
			continue
		}
		if !ok || peer.ConnectionID < found.ConnectionID {
			found, ok = peer, true
		}
	}
	return found, ok
}
