package connectiondao

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process connection registry with a secondary index by
// session. It backs console mode and tests. Like DynamoDB, it keeps expired
// records around until they are deleted explicitly.
type Memory struct {
	mu          sync.RWMutex
	connections map[string]Connection          // connection_id -> record
	bySession   map[string]map[string]struct{} // session_id -> connection_ids
}

func NewMemory() *Memory {
	return &Memory{
		connections: make(map[string]Connection),
		bySession:   make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Put(_ context.Context, conn Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.connections[conn.ConnectionID]; ok {
		m.unindex(prev)
	}
	m.connections[conn.ConnectionID] = conn

	ids, ok := m.bySession[conn.SessionID]
	if !ok {
		ids = make(map[string]struct{})
		m.bySession[conn.SessionID] = ids
	}
	ids[conn.ConnectionID] = struct{}{}
	return nil
}

func (m *Memory) Get(_ context.Context, connectionID string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

func (m *Memory) Delete(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil
	}
	delete(m.connections, connectionID)
	m.unindex(conn)
	return nil
}

// QueryBySession returns the session's records ordered by connection ID.
func (m *Memory) QueryBySession(_ context.Context, sessionID string) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.bySession[sessionID]
	conns := make([]Connection, 0, len(ids))
	for id := range ids {
		conns = append(conns, m.connections[id])
	}
	sortByID(conns)
	return conns, nil
}

func (m *Memory) ScanExpired(_ context.Context, now time.Time) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []Connection
	for _, conn := range m.connections {
		if conn.Expired(now) {
			conns = append(conns, conn)
		}
	}
	sortByID(conns)
	return conns, nil
}

func (m *Memory) Scan(_ context.Context) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	sortByID(conns)
	return conns, nil
}

// Count returns the total number of records, expired or not.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// unindex must be called with mu held.
func (m *Memory) unindex(conn Connection) {
	ids, ok := m.bySession[conn.SessionID]
	if !ok {
		return
	}
	delete(ids, conn.ConnectionID)
	if len(ids) == 0 {
		delete(m.bySession, conn.SessionID)
	}
}

func sortByID(conns []Connection) {
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ConnectionID < conns[j].ConnectionID
	})
}
