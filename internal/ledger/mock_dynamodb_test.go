package ledger

import (
	"context"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a minimal in-memory DynamoDB good enough for the ledger:
// items keyed by dedupe_key, with just enough ConditionExpression handling
// for the MarkFailed guard.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	putErr error // when set, PutItem fails with it
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	if v, ok := item["dedupe_key"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return nil, m.putErr
	}

	key := itemKey(in.Item)
	if in.ConditionExpression != nil {
		// The only condition the store uses: attribute_not_exists(dedupe_key) OR #s <> :done
		expr := *in.ConditionExpression
		if strings.Contains(expr, "attribute_not_exists") {
			if existing, ok := m.items[key]; ok {
				status, _ := existing["status"].(*types.AttributeValueMemberS)
				done, _ := in.ExpressionAttributeValues[":done"].(*types.AttributeValueMemberS)
				if status != nil && done != nil && status.Value == done.Value {
					return nil, &types.ConditionalCheckFailedException{}
				}
			}
		}
	}

	m.items[key] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := in.Key["dedupe_key"].(*types.AttributeValueMemberS)
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	item, ok := m.items[k.Value]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return &dyn.UpdateItemOutput{}, nil
}
