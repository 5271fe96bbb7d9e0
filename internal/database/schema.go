package database

import (
	"context"
	"errors"
	"fmt"

	"support-chat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

type IndexSpec struct {
	Name    string
	HashKey string
	SortKey string
}

type TableSpec struct {
	Name    string
	HashKey string
	Indexes []IndexSpec
}

// Schema lists every table the services read and write.
var Schema = []TableSpec{
	{
		Name:    model.UsersTable,
		HashKey: "userId",
		Indexes: []IndexSpec{{Name: model.UsersByTokenIndex, HashKey: "anonymousToken"}},
	},
	{
		Name:    model.AdminsTable,
		HashKey: "adminId",
		Indexes: []IndexSpec{{Name: model.AdminsByEmailIndex, HashKey: "email"}},
	},
	{
		Name:    model.ConversationsTable,
		HashKey: "conversationId",
		Indexes: []IndexSpec{
			{Name: model.ConversationsByOrganizationIndex, HashKey: "organizationId", SortKey: "updatedAt"},
			{Name: model.ConversationsByUserIndex, HashKey: "userId", SortKey: "createdAt"},
		},
	},
	{
		Name:    model.MessagesTable,
		HashKey: "messageId",
		Indexes: []IndexSpec{{Name: model.MessagesByConversationIndex, HashKey: "conversationId", SortKey: "createdAt"}},
	},
}

// EnsureTables creates missing tables with on-demand billing. Existing tables
// are left untouched.
func (d *Database) EnsureTables(ctx context.Context, specs []TableSpec) error {
	for _, spec := range specs {
		_, err := d.Client.svc.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(spec.Name)})
		if err == nil {
			log.Info().Str("table", spec.Name).Msg("table exists")
			continue
		}
		var rnf *types.ResourceNotFoundException
		if !errors.As(err, &rnf) {
			return fmt.Errorf("describe table %s: %w", spec.Name, err)
		}

		if _, err := d.Client.svc.CreateTable(ctx, createTableInput(spec)); err != nil {
			return fmt.Errorf("create table %s: %w", spec.Name, err)
		}
		log.Info().Str("table", spec.Name).Int("indexes", len(spec.Indexes)).Msg("table created")
	}
	return nil
}

func createTableInput(spec TableSpec) *dynamodb.CreateTableInput {
	attrs := map[string]struct{}{spec.HashKey: {}}
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(spec.Name),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(spec.HashKey), KeyType: types.KeyTypeHash},
		},
	}

	for _, idx := range spec.Indexes {
		keySchema := []types.KeySchemaElement{
			{AttributeName: aws.String(idx.HashKey), KeyType: types.KeyTypeHash},
		}
		attrs[idx.HashKey] = struct{}{}
		if idx.SortKey != "" {
			keySchema = append(keySchema, types.KeySchemaElement{AttributeName: aws.String(idx.SortKey), KeyType: types.KeyTypeRange})
			attrs[idx.SortKey] = struct{}{}
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchema,
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	for name := range attrs {
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}
	return input
}
