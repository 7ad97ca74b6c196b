package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	pkPrefix    = "SESSION#"
	skPrefixMsg = "MSG#"
	skMeta      = "META#"

	// Dynamo's TTL reaper is lazy and per-item. Session liveness is decided
	// by the META record's ttl; message items carry a much larger ttl so the
	// reaper never removes history out from under a live session.
	msgTTLFactor = 24
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore keeps session histories in a single DynamoDB table with a
// native ttl attribute. One partition per session: the META record tracks the
// expiry window, MSG records hold the turns ordered by their sort key.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a session store backed by the given DynamoDB table
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("session: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("session: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// SetClock overrides the store's time source (for tests)
func (s *DynamoStore) SetClock(now func() time.Time) {
	s.now = now
}

func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

func msgSK(at time.Time) string {
	return skPrefixMsg + at.UTC().Format(time.RFC3339Nano)
}

// Append writes the message and the refreshed META record in one transaction
func (s *DynamoStore) Append(ctx context.Context, sessionID, userQuery, botResponse string, at time.Time) (Message, error) {
	if at.IsZero() {
		at = s.now()
	}

	msg := Message{
		ID:          uuid.NewString(),
		UserQuery:   userQuery,
		BotResponse: botResponse,
		Timestamp:   at.UnixMilli(),
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      s.messageItem(sessionID, msg, at),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      s.metaItem(sessionID),
				},
			},
		},
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: append: %v", ErrStoreUnavailable, err)
	}
	return msg, nil
}

// Read queries all MSG records for the session in sort-key order.
// An expired or missing session yields an empty slice.
func (s *DynamoStore) Read(ctx context.Context, sessionID string) ([]Message, error) {
	live, err := s.isLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !live {
		return []Message{}, nil
	}

	items, err := s.queryAllPages(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrStoreUnavailable, err)
	}

	msgs := make([]Message, 0, len(items))
	for _, item := range items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("read unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	// The sort key encodes the append time, but guard against clock skew
	// between writers by ordering on the stored timestamp as well.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	return msgs, nil
}

// Clear deletes the META record and all MSG records for the session
func (s *DynamoStore) Clear(ctx context.Context, sessionID string) error {
	items, err := s.queryAllPages(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		return fmt.Errorf("%w: clear query: %v", ErrStoreUnavailable, err)
	}
	if len(items) == 0 {
		return nil
	}

	// BatchWriteItem caps at 25 requests per call
	for start := 0; start < len(items); start += 25 {
		end := min(start+25, len(items))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				}},
			})
		}

		_, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("%w: clear batch delete: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Refresh rewrites the META record with a fresh expiry window
func (s *DynamoStore) Refresh(ctx context.Context, sessionID string) error {
	live, err := s.isLive(ctx, sessionID)
	if err != nil {
		return err
	}
	if !live {
		return nil
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.metaItem(sessionID),
	})
	if err != nil {
		return fmt.Errorf("%w: refresh: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListActive scans for unexpired META records. Best-effort snapshot only:
// a single scan page is returned and concurrent expiry is not accounted for.
func (s *DynamoStore) ListActive(ctx context.Context) ([]string, error) {
	out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("SK = :meta AND #ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: skMeta},
			":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %v", ErrStoreUnavailable, err)
	}

	ids := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		pk, err := strAttr(item, "PK")
		if err != nil {
			continue
		}
		ids = append(ids, strings.TrimPrefix(pk, pkPrefix))
	}
	return ids, nil
}

// queryAllPages runs the query and follows LastEvaluatedKey so sessions
// larger than one result page are read and deleted in full
func (s *DynamoStore) queryAllPages(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// isLive reports whether the session has an unexpired META record
func (s *DynamoStore) isLive(ctx context.Context, sessionID string) (bool, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":meta": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("%w: meta lookup: %v", ErrStoreUnavailable, err)
	}
	if len(out.Items) == 0 {
		return false, nil
	}

	expiry, err := intAttr(out.Items[0], "ttl")
	if err != nil {
		return false, fmt.Errorf("meta decode: %w", err)
	}
	return int64(expiry) > s.now().Unix(), nil
}

func (s *DynamoStore) messageItem(sessionID string, msg Message, at time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":          &types.AttributeValueMemberS{Value: msgSK(at)},
		"msgId":       &types.AttributeValueMemberS{Value: msg.ID},
		"userQuery":   &types.AttributeValueMemberS{Value: msg.UserQuery},
		"botResponse": &types.AttributeValueMemberS{Value: msg.BotResponse},
		"ts":          &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.Timestamp, 10)},
		"ttl":         &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(msgTTLFactor*s.ttl).Unix(), 10)},
	}
}

func (s *DynamoStore) metaItem(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":  &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":  &types.AttributeValueMemberS{Value: skMeta},
		"ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (Message, error) {
	id, err := strAttr(item, "msgId")
	if err != nil {
		return Message{}, err
	}
	userQuery, err := strAttr(item, "userQuery")
	if err != nil {
		return Message{}, err
	}
	botResponse, _ := strAttr(item, "botResponse") // allow empty
	ts, err := intAttr(item, "ts")
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:          id,
		UserQuery:   userQuery,
		BotResponse: botResponse,
		Timestamp:   int64(ts),
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("session: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("session: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("session: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("session: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
