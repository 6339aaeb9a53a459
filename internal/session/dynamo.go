package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// stateItem is the DynamoDB shape of a session. The stage is stored by name.
type stateItem struct {
	SessionID      string           `dynamodbav:"sessionId"`
	Stage          string           `dynamodbav:"stage"`
	History        []dialogue.Turn  `dynamodbav:"history"`
	SelectedOption *string          `dynamodbav:"selectedOption,omitempty"`
	RepeatCounter  int              `dynamodbav:"repeatCounter"`
	Profile        dialogue.Profile `dynamodbav:"profile,omitempty"`
	CreatedAt      string           `dynamodbav:"createdAt"`
	UpdatedAt      string           `dynamodbav:"updatedAt"`
	ExpiresAt      int64            `dynamodbav:"expiresAt,omitempty"`
}

// DynamoStore persists sessions in a DynamoDB table keyed by sessionId, with
// expiresAt as the table TTL attribute.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl, logger: logger}
}

func (s *DynamoStore) Save(ctx context.Context, sessionID string, state *dialogue.ConversationState) error {
	if state == nil {
		return errors.New("session: state cannot be nil")
	}
	if !state.Stage.Valid() {
		return &dialogue.InvalidStageError{Value: state.Stage.String()}
	}
	item := stateItem{
		SessionID:      sessionID,
		Stage:          state.Stage.String(),
		History:        state.History,
		SelectedOption: state.SelectedOption,
		RepeatCounter:  state.RepeatCounter,
		Profile:        state.Profile,
		CreatedAt:      state.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:      state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:      time.Now().Add(s.ttl).Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("session: failed to persist state: %w", err)
	}
	return nil
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) (*dialogue.ConversationState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session: failed to fetch state: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item stateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("session: failed to decode state: %w", err)
	}
	if item.ExpiresAt > 0 && time.Unix(item.ExpiresAt, 0).Before(time.Now()) {
		// TTL deletion in DynamoDB is lazy.
		s.logger.Debug("session: ignoring expired item", "session_id", sessionID)
		return nil, nil
	}
	stage, err := dialogue.ParseStage(item.Stage)
	if err != nil {
		return nil, fmt.Errorf("session: stored state: %w", err)
	}

	state := &dialogue.ConversationState{
		ID:             item.SessionID,
		Stage:          stage,
		History:        item.History,
		SelectedOption: item.SelectedOption,
		RepeatCounter:  item.RepeatCounter,
		Profile:        item.Profile,
		CreatedAt:      parseTime(item.CreatedAt),
		UpdatedAt:      parseTime(item.UpdatedAt),
	}
	if state.History == nil {
		state.History = []dialogue.Turn{}
	}
	return state, nil
}

func (s *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(sessionID),
	}); err != nil {
		return fmt.Errorf("session: failed to delete state: %w", err)
	}
	return nil
}

func (s *DynamoStore) key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
