// Package signalddb provides DynamoDB and DAX client utilities and a stream
// consumer for the connections table.
package signalddb

import (
	"context"
	"encoding/json"
	"fmt"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodbstreams"
	"github.com/rs/zerolog"
	"github.com/savaki/ddb"
	"golang.org/x/sync/errgroup"
)

type InsertCallback func(ctx context.Context, newValue map[string]*dynamodb.AttributeValue) error
type UpdateCallback func(ctx context.Context, oldValue, newValue map[string]*dynamodb.AttributeValue) error
type DeleteCallback func(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error

// Handler consumes the change stream of a single table, either as a Lambda
// event source or, in console mode, by tailing the stream shards directly.
type Handler struct {
	service   signalcli.Service
	tableName string
	Logger    zerolog.Logger

	onInsert InsertCallback
	onUpdate UpdateCallback
	onDelete DeleteCallback
}

func NewHandler(
	service signalcli.Service,
	tableName string,
	onInsert InsertCallback,
	onUpdate UpdateCallback,
	onDelete DeleteCallback,
) *Handler {
	return &Handler{
		service:   service,
		tableName: tableName,
		Logger:    signalcli.Logger(service),
		onInsert:  onInsert,
		onUpdate:  onUpdate,
		onDelete:  onDelete,
	}
}

func (h *Handler) Start() error {
	switch {
	case signalcli.CommonOpts.Console:
		return h.handleRealtime()

	default:
		lambda.Start(h.HandleEvent)
	}
	return nil
}

func (h *Handler) HandleEvent(ctx context.Context, event ddb.Event) error {
	ctx = h.Logger.WithContext(ctx)
	h.Logger.Trace().Int("count", len(event.Records)).Msg("handling a batch of events")
	for _, record := range event.Records {
		if err := h.HandleSingleRecord(ctx, record); err != nil {
			h.Logger.Error().Err(err).Str("event", record.EventID).Msg("unable to handle record")
			return fmt.Errorf("unable to handle record: %w", err)
		}
	}
	return nil
}

func (h *Handler) HandleSingleRecord(ctx context.Context, record ddb.Record) error {
	switch record.EventName {
	case "INSERT":
		if h.onInsert != nil {
			return h.onInsert(ctx, record.Change.NewImage)
		}

	case "MODIFY":
		if h.onUpdate != nil {
			return h.onUpdate(ctx, record.Change.OldImage, record.Change.NewImage)
		}

	case "REMOVE":
		if h.onDelete != nil {
			return h.onDelete(ctx, record.Change.OldImage)
		}
	}
	return nil
}

func (h *Handler) handleRealtime() error {
	session := session.Must(session.NewSession(aws.NewConfig()))
	streams := dynamodbstreams.New(session)
	ss, err := streams.ListStreams(&dynamodbstreams.ListStreamsInput{
		TableName: aws.String(h.tableName),
	})
	if err != nil {
		return fmt.Errorf("unable to list streams for table %v: %w", h.tableName, err)
	}
	if len(ss.Streams) != 1 {
		return fmt.Errorf("too few or too many streams (%v) for table %v", len(ss.Streams), h.tableName)
	}
	stream := ss.Streams[0]

	var shards []*dynamodbstreams.Shard
	var lastShard *string
	for {
		ss, err := streams.DescribeStream(&dynamodbstreams.DescribeStreamInput{
			StreamArn:             stream.StreamArn,
			ExclusiveStartShardId: lastShard,
		})
		if err != nil {
			return fmt.Errorf("unable to describe stream %v: %w", *stream.StreamArn, err)
		}
		shards = append(shards, ss.StreamDescription.Shards...)
		if ss.StreamDescription.LastEvaluatedShardId == nil {
			break
		}
		lastShard = ss.StreamDescription.LastEvaluatedShardId
	}
	group, ctx := errgroup.WithContext(h.Logger.WithContext(context.Background()))
	group.SetLimit(256)

	h.Logger.Info().Str("tableName", h.tableName).Int("shardCount", len(shards)).Msg("responding to stream events")

	for _, shard := range shards {
		shard := shard
		group.Go(func() error {
			it, err := streams.GetShardIteratorWithContext(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         stream.StreamArn,
				ShardId:           shard.ShardId,
				ShardIteratorType: aws.String(dynamodbstreams.ShardIteratorTypeLatest),
			})
			if err != nil {
				return fmt.Errorf("unable to get shard iterator: %w", err)
			}

			for it.ShardIterator != nil {
				records, err := streams.GetRecordsWithContext(ctx, &dynamodbstreams.GetRecordsInput{
					ShardIterator: it.ShardIterator,
				})
				if err != nil {
					return fmt.Errorf("unable to get records: %w", err)
				}
				for _, record := range records.Records {
					// Reserialize to the ddb event type, as it's nicer to work with
					raw, err := json.Marshal(record)
					if err != nil {
						return fmt.Errorf("unable to marshal record: %w", err)
					}
					var ddbr ddb.Record
					if err := json.Unmarshal(raw, &ddbr); err != nil {
						return fmt.Errorf("unable to unmarshal record: %w", err)
					}
					if err := h.HandleSingleRecord(ctx, ddbr); err != nil {
						return fmt.Errorf("error processing record %v: %w", ddbr.EventID, err)
					}
				}
				it.ShardIterator = records.NextShardIterator
			}
			return nil
		})
	}
	return group.Wait()
}

func ParseItem(item map[string]*dynamodb.AttributeValue, v interface{}) error {
	if err := dynamodbattribute.UnmarshalMap(item, v); err != nil {
		return fmt.Errorf("unable to unmarshal item: %w", err)
	}
	return nil
}
