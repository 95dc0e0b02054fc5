package connectiondao

import "time"

const (
	// Unknown is stored when a client connects without a playerId or gameId.
	Unknown = "unknown"
	// Host is the reserved participant id of the device hosting a game.
	Host = "HOST"
	// SessionIndex is the GSI keyed on session_id.
	SessionIndex = "SessionIndex"
)

// Connection represents a live WebSocket connection stored in DynamoDB.
type Connection struct {
	ConnectionID  string `dynamodbav:"pk" ddb:"hash"`
	ParticipantID string `dynamodbav:"participant_id"`
	SessionID     string `dynamodbav:"session_id" ddb:"gsi_hash:SessionIndex"`
	Endpoint      string `dynamodbav:"endpoint,omitempty"`
	ConnectedAt   int64  `dynamodbav:"connected_at"`
	TTL           int64  `dynamodbav:"ttl"`
}

func (c Connection) IsHost() bool {
	return c.ParticipantID == Host
}

// Expired reports whether the record's ttl has passed. DynamoDB removes such
// items lazily, so they can still be returned by reads for some time.
func (c Connection) Expired(now time.Time) bool {
	return c.TTL > 0 && now.Unix() > c.TTL
}
