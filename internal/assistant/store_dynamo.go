package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// sessionRecord is the DynamoDB item layout. Messages hold the JSON log so the
// persisted schema matches the other stores.
type sessionRecord struct {
	OwnerKey  string `dynamodbav:"ownerKey"`
	Messages  string `dynamodbav:"messages"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore persists sessions to a DynamoDB table keyed by ownerKey.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	if client == nil {
		panic("assistant: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("assistant: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, now: time.Now}
}

var _ Store = (*DynamoStore)(nil)

func (s *DynamoStore) Save(ctx context.Context, owner string, messages []Message) error {
	data, err := EncodeMessages(messages)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	record := sessionRecord{
		OwnerKey:  SessionKey(owner),
		Messages:  string(data),
		UpdatedAt: now.Format(time.RFC3339Nano),
	}
	if s.ttl > 0 {
		record.ExpiresAt = now.Add(s.ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("assistant: failed to marshal session: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("assistant: failed to persist session: %w", err)
	}
	return nil
}

func (s *DynamoStore) Load(ctx context.Context, owner string) ([]Message, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"ownerKey": &types.AttributeValueMemberS{Value: SessionKey(owner)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to fetch session: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var record sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, nil
	}
	messages, err := DecodeMessages([]byte(record.Messages))
	if err != nil {
		return nil, nil
	}
	return messages, nil
}
