package signalws

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultSweepConcurrency = 25

// SweepRegistry is the part of the connection store the sweeper needs.
type SweepRegistry interface {
	ScanExpired(ctx context.Context, now time.Time) ([]connectiondao.Connection, error)
	Scan(ctx context.Context) ([]connectiondao.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// Prober reports whether a connection is still open at the gateway.
// Implementations return an error wrapping ErrConnectionGone when it is not.
type Prober interface {
	Probe(ctx context.Context, endpoint, connectionID string) error
}

// Sweeper removes connection records that outlived their connection.
type Sweeper struct {
	Connections SweepRegistry
	Prober      Prober // optional; nil disables probing of unexpired records
	Concurrency int
	Dry         bool
	Logger      zerolog.Logger
	Metrics     *signalcli.Metrics
	Now         func() time.Time
}

// SweepResult counts the records removed by one sweep.
type SweepResult struct {
	Expired int
	Gone    int
}

// Sweep deletes every expired record and, when a Prober is set, every
// unexpired record whose connection the gateway reports gone. A failure on one
// record is logged and does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	ctx = s.Logger.WithContext(ctx)

	expired, err := s.Connections.ScanExpired(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	var live []connectiondao.Connection
	if s.Prober != nil {
		all, err := s.Connections.Scan(ctx)
		if err != nil {
			return SweepResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		for _, conn := range all {
			if !conn.Expired(now) && conn.Endpoint != "" {
				live = append(live, conn)
			}
		}
	}

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}

	var result struct {
		expired atomic.Int64
		gone    atomic.Int64
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, conn := range expired {
		conn := conn
		g.Go(func() error {
			if s.remove(ctx, conn, "expired") {
				result.expired.Add(1)
			}
			return nil
		})
	}
	for _, conn := range live {
		conn := conn
		g.Go(func() error {
			err := s.Prober.Probe(ctx, conn.Endpoint, conn.ConnectionID)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrConnectionGone):
				if s.remove(ctx, conn, "gone") {
					result.gone.Add(1)
				}
			default:
				zerolog.Ctx(ctx).Warn().Err(err).Str("connection_id", conn.ConnectionID).Msg("failed to probe connection")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}

	swept := SweepResult{
		Expired: int(result.expired.Load()),
		Gone:    int(result.gone.Load()),
	}
	s.Metrics.Count(ctx, signalcli.ConnectionsSweptMetric, swept.Expired+swept.Gone)
	s.Logger.Info().
		Int("expired", swept.Expired).
		Int("gone", swept.Gone).
		Bool("dry", s.Dry).
		Msg("sweep complete")
	return swept, nil
}

func (s *Sweeper) remove(ctx context.Context, conn connectiondao.Connection, reason string) bool {
	logger := zerolog.Ctx(ctx).With().
		Str("connection_id", conn.ConnectionID).
		Str("session_id", conn.SessionID).
		Str("participant_id", conn.ParticipantID).
		Str("reason", reason).
		Logger()

	if s.Dry {
		logger.Info().Msg("dry run, not deleting connection")
		return true
	}
	if err := s.Connections.Delete(ctx, conn.ConnectionID); err != nil {
		logger.Error().Err(err).Msg("failed to delete connection")
		return false
	}
	logger.Debug().Msg("deleted connection")
	return true
}
