package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrConditionFailed = errors.New("condition check failed")
)

func AttrString(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func AttrNumber(value string) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: value}
}

func AttrBool(value bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: value}
}

func (c *DynamoDBClient) PutItem(
	ctx context.Context,
	tableName string,
	item interface{},
	conditionExpr *string,
) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(tableName),
		Item:                av,
		ConditionExpression: conditionExpr,
	}

	_, err = c.svc.PutItem(ctx, input)
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("put item %s: %w", tableName, ErrConditionFailed)
		}
		return fmt.Errorf("put item %s: %w", tableName, err)
	}
	return nil
}

func (c *DynamoDBClient) GetItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	out interface{},
) error {
	input := &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	}

	res, err := c.svc.GetItem(ctx, input)
	if err != nil {
		return fmt.Errorf("get item %s: %w", tableName, err)
	}
	if res.Item == nil {
		return fmt.Errorf("%s: %w", tableName, ErrItemNotFound)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

// UpdateInput describes a single UpdateItem call. ReturnValues defaults to
// ALL_NEW; Out receives whichever image was requested.
type UpdateInput struct {
	TableName      string
	Key            map[string]types.AttributeValue
	UpdateExpr     string
	ConditionExpr  string
	ExprAttrValues map[string]types.AttributeValue
	ExprAttrNames  map[string]string
	ReturnValues   types.ReturnValue
	Out            interface{}
}

func (c *DynamoDBClient) UpdateItem(ctx context.Context, in UpdateInput) error {
	returnValues := in.ReturnValues
	if returnValues == "" {
		returnValues = types.ReturnValueAllNew
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(in.TableName),
		Key:                       in.Key,
		UpdateExpression:          aws.String(in.UpdateExpr),
		ExpressionAttributeValues: in.ExprAttrValues,
		ReturnValues:              returnValues,
	}
	if len(in.ExprAttrNames) > 0 {
		input.ExpressionAttributeNames = in.ExprAttrNames
	}
	if in.ConditionExpr != "" {
		input.ConditionExpression = aws.String(in.ConditionExpr)
	}

	res, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("update item %s: %w", in.TableName, ErrConditionFailed)
		}
		return fmt.Errorf("update item %s: %w", in.TableName, err)
	}

	if in.Out != nil && len(res.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(res.Attributes, in.Out); err != nil {
			return fmt.Errorf("unmarshal updated item: %w", err)
		}
	}
	return nil
}

// QueryAll performs a complete query, handling pagination internally.
func (c *DynamoDBClient) QueryAll(
	ctx context.Context,
	tableName string,
	indexName *string,
	keyCondExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
	scanIndexForward *bool,
) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(tableName),
			KeyConditionExpression:    aws.String(keyCondExpr),
			ExpressionAttributeValues: exprAttrValues,
			IndexName:                 indexName,
			ScanIndexForward:          scanIndexForward,
		}
		if len(exprAttrNames) > 0 {
			input.ExpressionAttributeNames = exprAttrNames
		}

		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := c.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query all %s[%s]: %w", tableName, aws.ToString(indexName), err)
		}

		allItems = append(allItems, result.Items...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

func (c *DynamoDBClient) ScanAllWithFilter(
	ctx context.Context,
	tableName string,
	filterExpr string,
	exprAttrValues map[string]types.AttributeValue,
	exprAttrNames map[string]string,
) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(tableName),
			FilterExpression:          aws.String(filterExpr),
			ExpressionAttributeValues: exprAttrValues,
			ConsistentRead:            aws.Bool(true),
		}
		if exprAttrNames != nil {
			input.ExpressionAttributeNames = exprAttrNames
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := c.svc.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan all with filter %s: %w", tableName, err)
		}

		allItems = append(allItems, result.Items...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}
	return allItems, nil
}

// QueryIndexOrScan queries a GSI and falls back to a filtered scan when the
// index does not exist yet (fresh local tables).
func (c *DynamoDBClient) QueryIndexOrScan(
	ctx context.Context,
	tableName string,
	indexName string,
	attribute string,
	value string,
	scanIndexForward *bool,
) ([]map[string]types.AttributeValue, error) {
	items, err := c.QueryAll(
		ctx,
		tableName,
		aws.String(indexName),
		"#attr = :value",
		map[string]types.AttributeValue{":value": AttrString(value)},
		map[string]string{"#attr": attribute},
		scanIndexForward,
	)
	if err == nil {
		return items, nil
	}
	if !IsIndexNotFound(err) {
		return nil, err
	}

	return c.ScanAllWithFilter(
		ctx,
		tableName,
		"#attr = :value",
		map[string]types.AttributeValue{":value": AttrString(value)},
		map[string]string{"#attr": attribute},
	)
}

func (c *DynamoDBClient) DeleteItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	}

	_, err := c.svc.DeleteItem(ctx, input)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", tableName, err)
	}
	return nil
}

func UnmarshalItems[T any](items []map[string]types.AttributeValue) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := attributevalue.UnmarshalMap(item, &v); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

func IsIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "index") {
		return false
	}
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not have the specified index")
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
