// Package dynamostore is a task.Store backed by a DynamoDB table keyed by
// (userId, todoId) with a local secondary index on createdAt.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jonwraymond/todos/health"
	"github.com/jonwraymond/todos/task"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Attribute names.
const (
	attrUserID    = "userId"
	attrTodoID    = "todoId"
	attrName      = "name"
	attrDueDate   = "dueDate"
	attrDone      = "done"
	attrUpdatedAt = "updatedAt"
)

// Store implements task.Store.
type Store struct {
	api   API
	table string
	index string
}

// New creates a Store over table, listing through index.
func New(api API, table, index string) *Store {
	return &Store{api: api, table: table, index: index}
}

func (s *Store) key(userID, todoID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID: &types.AttributeValueMemberS{Value: userID},
		attrTodoID: &types.AttributeValueMemberS{Value: todoID},
	}
}

// exists is the condition every write to an existing task carries.
func exists() expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(attrTodoID))
}

func (s *Store) Get(ctx context.Context, userID, todoID string) (*task.Task, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(userID, todoID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, task.ErrNotFound
	}
	var t task.Task
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("dynamostore: decode item: %w", err)
	}
	return &t, nil
}

func (s *Store) Put(ctx context.Context, t *task.Task) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("dynamostore: encode item: %w", err)
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(attrTodoID))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamostore: build condition: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return fmt.Errorf("dynamostore: put: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, userID, todoID string, u task.Update) error {
	update := expression.
		Set(expression.Name(attrName), expression.Value(u.Name)).
		Set(expression.Name(attrDueDate), expression.Value(u.DueDate)).
		Set(expression.Name(attrDone), expression.Value(u.Done)).
		Set(expression.Name(attrUpdatedAt), expression.Value(u.UpdatedAt))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(exists()).Build()
	if err != nil {
		return fmt.Errorf("dynamostore: build update: %w", err)
	}
	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(userID, todoID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return mapWriteError("update", err)
}

func (s *Store) Delete(ctx context.Context, userID, todoID string) error {
	expr, err := expression.NewBuilder().WithCondition(exists()).Build()
	if err != nil {
		return fmt.Errorf("dynamostore: build condition: %w", err)
	}
	_, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.key(userID, todoID),
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	return mapWriteError("delete", err)
}

// List queries the createdAt index, which returns items in creation order.
func (s *Store) List(ctx context.Context, userID string) ([]task.Task, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrUserID).Equal(expression.Value(userID))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamostore: build query: %w", err)
	}

	p := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	tasks := []task.Task{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamostore: query: %w", err)
		}
		var batch []task.Task
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("dynamostore: decode items: %w", err)
		}
		tasks = append(tasks, batch...)
	}
	return tasks, nil
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return task.ErrNotFound
	}
	return fmt.Errorf("dynamostore: %s: %w", op, err)
}

// Name implements health.Checker.
func (s *Store) Name() string { return "store" }

// Check implements health.Checker by describing the table.
func (s *Store) Check(ctx context.Context) health.Result {
	out, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return health.Unhealthy("table unreachable", err)
	}
	status := out.Table.TableStatus
	res := health.Healthy("table active").WithDetails(map[string]any{
		"table":  s.table,
		"status": string(status),
	})
	if status != types.TableStatusActive {
		res.Status = health.StatusDegraded
		res.Message = "table not active"
	}
	return res
}

var (
	_ task.Store     = (*Store)(nil)
	_ health.Checker = (*Store)(nil)
)
