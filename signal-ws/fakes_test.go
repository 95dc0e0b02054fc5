package signalws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Michael-R-Dickinson/table-poker/signal-ws/connectiondao"
)

type delivery struct {
	ConnectionID string
	Envelope     Envelope
}

// recordingPoster captures every push and can be told to fail for given
// connection IDs.
type recordingPoster struct {
	mu         sync.Mutex
	deliveries []delivery
	fail       map[string]error
}

func (p *recordingPoster) PosterFor(string) Poster {
	return p
}

func (p *recordingPoster) Post(_ context.Context, connID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.fail[connID]; ok {
		return err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	p.deliveries = append(p.deliveries, delivery{ConnectionID: connID, Envelope: env})
	return nil
}

func (p *recordingPoster) Deliveries() []delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]delivery(nil), p.deliveries...)
}

// laggingIndex hides records from session queries, like a GSI that has not
// caught up with recent writes.
type laggingIndex struct {
	*connectiondao.Memory
	hidden map[string]bool
}

func (l laggingIndex) QueryBySession(ctx context.Context, sessionID string) ([]connectiondao.Connection, error) {
	conns, err := l.Memory.QueryBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var visible []connectiondao.Connection
	for _, conn := range conns {
		if !l.hidden[conn.ConnectionID] {
			visible = append(visible, conn)
		}
	}
	return visible, nil
}

// brokenRegistry fails every call.
type brokenRegistry struct {
	err error
}

func (b brokenRegistry) Put(context.Context, connectiondao.Connection) error { return b.err }
func (b brokenRegistry) Get(context.Context, string) (*connectiondao.Connection, error) {
	return nil, b.err
}
func (b brokenRegistry) Delete(context.Context, string) error { return b.err }
func (b brokenRegistry) QueryBySession(context.Context, string) ([]connectiondao.Connection, error) {
	return nil, b.err
}

var testNow = time.Unix(1_760_000_000, 0)

func conn(connID, participantID, sessionID string) connectiondao.Connection {
	return connectiondao.Connection{
		ConnectionID:  connID,
		ParticipantID: participantID,
		SessionID:     sessionID,
		ConnectedAt:   testNow.Unix(),
		TTL:           testNow.Add(DefaultConnTTL).Unix(),
	}
}

func memoryWith(conns ...connectiondao.Connection) *connectiondao.Memory {
	m := connectiondao.NewMemory()
	for _, c := range conns {
		_ = m.Put(context.Background(), c)
	}
	return m
}
