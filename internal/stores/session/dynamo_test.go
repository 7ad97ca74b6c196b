package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	queryOuts   []*dynamodb.QueryOutput
	queryErr    error
	putErr      error
	txErr       error
	batchErr    error
	scanOut     *dynamodb.ScanOutput
	scanErr     error
	queryInputs []*dynamodb.QueryInput
	lastTxIn    *dynamodb.TransactWriteItemsInput
	lastBatchIn *dynamodb.BatchWriteItemInput
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryOuts) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := f.queryOuts[0]
	f.queryOuts = f.queryOuts[1:]
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxIn = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.lastBatchIn = in
	return &dynamodb.BatchWriteItemOutput{}, f.batchErr
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return f.scanOut, f.scanErr
}

func makeMsgItem(sessionID, id, query, response string, ts int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":          &types.AttributeValueMemberS{Value: msgSK(time.UnixMilli(ts))},
		"msgId":       &types.AttributeValueMemberS{Value: id},
		"userQuery":   &types.AttributeValueMemberS{Value: query},
		"botResponse": &types.AttributeValueMemberS{Value: response},
		"ts":          &types.AttributeValueMemberN{Value: strconv.FormatInt(ts, 10)},
	}
}

func makeMetaItem(sessionID string, expiry int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":  &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":  &types.AttributeValueMemberS{Value: skMeta},
		"ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiry, 10)},
	}
}

func mustNewDynamoStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	store, err := NewDynamoStore(db, "test-table", time.Hour)
	require.NoError(t, err)
	return store
}

func TestDynamoStoreAppendWritesMessageAndMeta(t *testing.T) {
	db := &fakeDynamo{}
	store := mustNewDynamoStore(t, db)

	msg, err := store.Append(context.Background(), "s1", "hi", "hello!", time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "hi", msg.UserQuery)

	require.NotNil(t, db.lastTxIn)
	require.Len(t, db.lastTxIn.TransactItems, 2)
}

func TestDynamoStoreAppendUnavailable(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	store := mustNewDynamoStore(t, db)

	_, err := store.Append(context.Background(), "s1", "hi", "hello!", time.Time{})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestDynamoStoreReadChronological(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		// meta lookup, then the message query
		{Items: []map[string]types.AttributeValue{makeMetaItem("s1", now.Add(time.Hour).Unix())}},
		{Items: []map[string]types.AttributeValue{
			makeMsgItem("s1", "m1", "hi", "hello!", now.UnixMilli()),
			makeMsgItem("s1", "m2", "bye", "goodbye!", now.Add(time.Minute).UnixMilli()),
		}},
	}}
	store := mustNewDynamoStore(t, db)
	store.SetClock(func() time.Time { return now })

	msgs, err := store.Read(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hi", msgs[0].UserQuery)
	require.Equal(t, "bye", msgs[1].UserQuery)
}

func TestDynamoStoreReadFollowsPagination(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pageKey := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK("s1")},
		"SK": &types.AttributeValueMemberS{Value: msgSK(now)},
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{makeMetaItem("s1", now.Add(time.Hour).Unix())}},
		{
			Items:            []map[string]types.AttributeValue{makeMsgItem("s1", "m1", "q1", "a1", now.UnixMilli())},
			LastEvaluatedKey: pageKey,
		},
		{Items: []map[string]types.AttributeValue{
			makeMsgItem("s1", "m2", "q2", "a2", now.Add(time.Minute).UnixMilli()),
		}},
	}}
	store := mustNewDynamoStore(t, db)
	store.SetClock(func() time.Time { return now })

	msgs, err := store.Read(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "q2", msgs[1].UserQuery)

	// meta lookup, first page, then the continuation with the page key
	require.Len(t, db.queryInputs, 3)
	require.Equal(t, pageKey, db.queryInputs[2].ExclusiveStartKey)
}

func TestDynamoStoreReadExpiredSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{makeMetaItem("s1", now.Add(-time.Minute).Unix())}},
	}}
	store := mustNewDynamoStore(t, db)
	store.SetClock(func() time.Time { return now })

	msgs, err := store.Read(context.Background(), "s1")
	require.NoError(t, err)
	require.Empty(t, msgs)
	// Only the meta lookup ran
	require.Len(t, db.queryInputs, 1)
}

func TestDynamoStoreClearDeletesAllRecords(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{
			makeMetaItem("s1", now.Add(time.Hour).Unix()),
			makeMsgItem("s1", "m1", "hi", "hello!", now.UnixMilli()),
		}},
	}}
	store := mustNewDynamoStore(t, db)

	require.NoError(t, store.Clear(context.Background(), "s1"))
	require.NotNil(t, db.lastBatchIn)
	require.Len(t, db.lastBatchIn.RequestItems["test-table"], 2)
}

func TestDynamoStoreClearFollowsPagination(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pageKey := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK("s1")},
		"SK": &types.AttributeValueMemberS{Value: msgSK(now)},
	}
	db := &fakeDynamo{queryOuts: []*dynamodb.QueryOutput{
		{
			Items: []map[string]types.AttributeValue{
				makeMetaItem("s1", now.Add(time.Hour).Unix()),
				makeMsgItem("s1", "m1", "q1", "a1", now.UnixMilli()),
			},
			LastEvaluatedKey: pageKey,
		},
		{Items: []map[string]types.AttributeValue{
			makeMsgItem("s1", "m2", "q2", "a2", now.Add(time.Minute).UnixMilli()),
		}},
	}}
	store := mustNewDynamoStore(t, db)

	// Records beyond the first page are deleted too
	require.NoError(t, store.Clear(context.Background(), "s1"))
	require.NotNil(t, db.lastBatchIn)
	require.Len(t, db.lastBatchIn.RequestItems["test-table"], 3)
}

func TestDynamoStoreClearMissingSession(t *testing.T) {
	db := &fakeDynamo{}
	store := mustNewDynamoStore(t, db)

	require.NoError(t, store.Clear(context.Background(), "never-existed"))
	require.Nil(t, db.lastBatchIn)
}

func TestDynamoStoreListActive(t *testing.T) {
	db := &fakeDynamo{scanOut: &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{
		{"PK": &types.AttributeValueMemberS{Value: sessionPK("s1")}},
		{"PK": &types.AttributeValueMemberS{Value: sessionPK("s2")}},
	}}}
	store := mustNewDynamoStore(t, db)

	ids, err := store.ListActive(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, ids)
}
