package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/graphstore/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory commit table.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	return item[name].(*types.AttributeValueMemberS).Value
}

func attrN(item map[string]types.AttributeValue, name string) uint64 {
	v, _ := strconv.ParseUint(item[name].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s:%d", attrS(params.Item, "base_uri"), attrN(params.Item, "version"))
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if attrS(item, "base_uri") == uri {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		return int(attrN(b, "version")) - int(attrN(a, "version"))
	})
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func newTestDDBCommitStore(ddb DDBClient, baseURI string) *DDBCommitStore {
	return NewDDBCommitStore(NewStore(new(MockS3Client), "test-bucket", "test/"), ddb, "graphstore-commits", baseURI)
}

func readCurrent(t *testing.T, store blobstore.BlobStore) string {
	t.Helper()
	data, err := blobstore.ReadFile(t.Context(), store, blobstore.CurrentName)
	require.NoError(t, err)
	return string(data)
}

func TestDDBCommitStoreCommits(t *testing.T) {
	ddb := newMockDDBClient()
	store := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")

	_, err := store.Open(t.Context(), blobstore.CurrentName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Put(t.Context(), blobstore.CurrentName, []byte(fmt.Sprintf("ckpt-%d/catalog.json", i))))
	}
	assert.Equal(t, "ckpt-12/catalog.json", readCurrent(t, store))

	version, target, err := store.LatestVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), version)
	assert.Equal(t, "ckpt-12/catalog.json", target)
}

func TestDDBCommitStoreConflict(t *testing.T) {
	ddb := newMockDDBClient()
	store := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")
	require.NoError(t, store.Put(t.Context(), blobstore.CurrentName, []byte("ckpt-1/catalog.json")))

	// A second writer that read version 1 loses the race for version 2.
	require.NoError(t, store.commitVersion(t.Context(), 2, "ckpt-2/catalog.json"))
	err := store.commitVersion(t.Context(), 2, "ckpt-other/catalog.json")
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, "ckpt-2/catalog.json", readCurrent(t, store))
}

func TestDDBCommitStoreConcurrentWriters(t *testing.T) {
	ddb := newMockDDBClient()
	store := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Put(t.Context(), blobstore.CurrentName, []byte(fmt.Sprintf("ckpt-%d/catalog.json", i)))
			if err != nil && !errors.Is(err, ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	version, _, err := store.LatestVersion(t.Context())
	require.NoError(t, err)
	assert.Positive(t, successes)
	assert.Equal(t, uint64(successes), version)
}

func TestDDBCommitStoreIsolatedNamespaces(t *testing.T) {
	ddb := newMockDDBClient()
	a := newTestDDBCommitStore(ddb, "s3://bucket-a/path/")
	b := newTestDDBCommitStore(ddb, "s3://bucket-b/path/")

	require.NoError(t, a.Put(t.Context(), blobstore.CurrentName, []byte("A")))
	require.NoError(t, b.Put(t.Context(), blobstore.CurrentName, []byte("B")))
	assert.Equal(t, "A", readCurrent(t, a))
	assert.Equal(t, "B", readCurrent(t, b))
}

func TestDDBCommitStoreMalformedRow(t *testing.T) {
	ddb := newMockDDBClient()
	ddb.items["s3://x/:1"] = map[string]types.AttributeValue{
		"base_uri": &types.AttributeValueMemberS{Value: "s3://x/"},
		"version":  &types.AttributeValueMemberN{Value: "1"},
	}
	store := newTestDDBCommitStore(ddb, "s3://x/")
	_, _, err := store.LatestVersion(t.Context())
	assert.Error(t, err)
}
