package connectiondao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the signaling connections table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
	}
}

// Table exposes the underlying table, mostly so tests can create and drop it.
func (d *DAO) Table() *ddb.Table {
	return d.table
}

// Put stores a connection record, replacing any record with the same ID.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record by ID. Returns nil if not found.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ConsistentRead(true).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// Delete removes a connection record by ID. Deleting a missing record is not
// an error.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return nil
}

// QueryBySession returns all connections in a session using the SessionIndex
// GSI. GSI reads are eventually consistent.
func (d *DAO) QueryBySession(ctx context.Context, sessionID string) ([]Connection, error) {
	var conns []Connection
	err := d.table.Query("#SessionID = ?", sessionID).
		IndexName(SessionIndex).
		FindAllWithContext(ctx, &conns)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections by session %v: %w", sessionID, err)
	}
	return conns, nil
}

// ScanExpired returns every record whose ttl is already behind now but which
// DynamoDB has not yet removed.
func (d *DAO) ScanExpired(ctx context.Context, now time.Time) ([]Connection, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(d.tableName),
		FilterExpression: aws.String("#ttl > :zero AND #ttl < :now"),
		ExpressionAttributeNames: map[string]*string{
			"#ttl": aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":zero": {N: aws.String("0")},
			":now":  {N: aws.String(fmt.Sprint(now.Unix()))},
		},
	}
	return d.scan(ctx, input)
}

// Scan returns every record in the table.
func (d *DAO) Scan(ctx context.Context) ([]Connection, error) {
	return d.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(d.tableName)})
}

func (d *DAO) scan(ctx context.Context, input *dynamodb.ScanInput) ([]Connection, error) {
	var (
		conns   []Connection
		pageErr error
	)
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, _ bool) bool {
		var items []Connection
		if pageErr = dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); pageErr != nil {
			return false
		}
		conns = append(conns, items...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan connections table %v: %w", d.tableName, err)
	}
	if pageErr != nil {
		return nil, fmt.Errorf("failed to unmarshal connections from %v: %w", d.tableName, pageErr)
	}
	return conns, nil
}
