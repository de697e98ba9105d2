// Package dynamodb implements the graph store adapter on DynamoDB. A
// concept's categories and relationships live in one partition
// (PK CONCEPT#id) so the whole graph is one Query away.
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"noesis-backend/domain"
	apperrors "noesis-backend/pkg/errors"
)

const (
	entityTypeCategory     = "CATEGORY"
	entityTypeRelationship = "RELATIONSHIP"
)

// GraphStore is the DynamoDB-backed graph adapter.
type GraphStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewGraphStore creates a graph store over a DynamoDB client.
func NewGraphStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *GraphStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphStore{client: client, tableName: tableName, logger: logger}
}

// categoryItem is the DynamoDB item for a category.
type categoryItem struct {
	PK                     string  `dynamodbav:"PK"`
	SK                     string  `dynamodbav:"SK"`
	EntityType             string  `dynamodbav:"EntityType"`
	CategoryID             string  `dynamodbav:"CategoryID"`
	ConceptID              string  `dynamodbav:"ConceptID"`
	Name                   string  `dynamodbav:"Name"`
	Definition             string  `dynamodbav:"Definition"`
	Centrality             float64 `dynamodbav:"Centrality"`
	Certainty              float64 `dynamodbav:"Certainty"`
	HistoricalSignificance float64 `dynamodbav:"HistoricalSignificance"`
}

// relationshipItem is the DynamoDB item for a relationship.
type relationshipItem struct {
	PK               string  `dynamodbav:"PK"`
	SK               string  `dynamodbav:"SK"`
	EntityType       string  `dynamodbav:"EntityType"`
	RelationshipID   string  `dynamodbav:"RelationshipID"`
	ConceptID        string  `dynamodbav:"ConceptID"`
	SourceCategoryID string  `dynamodbav:"SourceCategoryID"`
	TargetCategoryID string  `dynamodbav:"TargetCategoryID"`
	Type             string  `dynamodbav:"Type"`
	Direction        string  `dynamodbav:"Direction"`
	Strength         float64 `dynamodbav:"Strength"`
	Certainty        float64 `dynamodbav:"Certainty"`
}

func conceptPK(conceptID string) string { return "CONCEPT#" + conceptID }
func categorySK(categoryID string) string { return "CATEGORY#" + categoryID }
func relationshipSK(relationshipID string) string { return "REL#" + relationshipID }

// CreateCategory writes a category with a conditional put so duplicate ids
// surface as Conflict.
func (s *GraphStore) CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	item := categoryItem{
		PK:                     conceptPK(category.ConceptID),
		SK:                     categorySK(category.ID),
		EntityType:             entityTypeCategory,
		CategoryID:             category.ID,
		ConceptID:              category.ConceptID,
		Name:                   category.Name,
		Definition:             category.Definition,
		Centrality:             category.Centrality,
		Certainty:              category.Certainty,
		HistoricalSignificance: category.HistoricalSignificance,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, apperrors.NewInternal("failed to marshal category", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return nil, s.mapError("create category", err,
			apperrors.NewConflict("category "+category.ID+" already exists"))
	}

	copied := *category
	return &copied, nil
}

// GetCategory fetches one category.
func (s *GraphStore) GetCategory(ctx context.Context, conceptID, categoryID string) (*domain.Category, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conceptPK(conceptID)},
			"SK": &types.AttributeValueMemberS{Value: categorySK(categoryID)},
		},
	})
	if err != nil {
		return nil, s.mapError("get category", err, nil)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFound("category " + categoryID + " not found")
	}

	var item categoryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, apperrors.NewInternal("failed to unmarshal category", err)
	}
	return item.toDomain(), nil
}

// UpdateCategory replaces an existing category. The conditional expression
// turns a blind update of a missing item into NotFound.
func (s *GraphStore) UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error) {
	item := categoryItem{
		PK:                     conceptPK(category.ConceptID),
		SK:                     categorySK(category.ID),
		EntityType:             entityTypeCategory,
		CategoryID:             category.ID,
		ConceptID:              category.ConceptID,
		Name:                   category.Name,
		Definition:             category.Definition,
		Centrality:             category.Centrality,
		Certainty:              category.Certainty,
		HistoricalSignificance: category.HistoricalSignificance,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, apperrors.NewInternal("failed to marshal category", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
	})
	if err != nil {
		return nil, s.mapError("update category", err,
			apperrors.NewNotFound("category "+category.ID+" not found"))
	}

	copied := *category
	return &copied, nil
}

// DeleteCategory removes a category and every relationship touching it.
func (s *GraphStore) DeleteCategory(ctx context.Context, conceptID, categoryID string) error {
	graph, err := s.GetGraphByConcept(ctx, conceptID)
	if err != nil {
		return err
	}
	if graph.CategoryByID(categoryID) == nil {
		return apperrors.NewNotFound("category " + categoryID + " not found")
	}

	for _, rel := range graph.Relationships {
		if rel.SourceCategoryID != categoryID && rel.TargetCategoryID != categoryID {
			continue
		}
		if err := s.DeleteRelationship(ctx, conceptID, rel.ID); err != nil && !apperrors.IsNotFound(err) {
			return err
		}
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conceptPK(conceptID)},
			"SK": &types.AttributeValueMemberS{Value: categorySK(categoryID)},
		},
	})
	return s.mapError("delete category", err, nil)
}

// CreateRelationship writes a relationship after verifying both endpoint
// categories exist in the concept's partition.
func (s *GraphStore) CreateRelationship(ctx context.Context, rel *domain.Relationship) (*domain.Relationship, error) {
	for _, categoryID := range []string{rel.SourceCategoryID, rel.TargetCategoryID} {
		if _, err := s.GetCategory(ctx, rel.ConceptID, categoryID); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewValidationFailed(
					fmt.Sprintf("relationship endpoint %s does not belong to concept %s", categoryID, rel.ConceptID))
			}
			return nil, err
		}
	}

	item := relationshipItem{
		PK:               conceptPK(rel.ConceptID),
		SK:               relationshipSK(rel.ID),
		EntityType:       entityTypeRelationship,
		RelationshipID:   rel.ID,
		ConceptID:        rel.ConceptID,
		SourceCategoryID: rel.SourceCategoryID,
		TargetCategoryID: rel.TargetCategoryID,
		Type:             rel.Type,
		Direction:        string(rel.Direction),
		Strength:         rel.Strength,
		Certainty:        rel.Certainty,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, apperrors.NewInternal("failed to marshal relationship", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return nil, s.mapError("create relationship", err,
			apperrors.NewConflict("relationship "+rel.ID+" already exists"))
	}

	copied := *rel
	return &copied, nil
}

// DeleteRelationship removes a relationship.
func (s *GraphStore) DeleteRelationship(ctx context.Context, conceptID, relationshipID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conceptPK(conceptID)},
			"SK": &types.AttributeValueMemberS{Value: relationshipSK(relationshipID)},
		},
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
	})
	return s.mapError("delete relationship", err,
		apperrors.NewNotFound("relationship "+relationshipID+" not found"))
}

// GetGraphByConcept queries the concept's partition and assembles the full
// graph projection.
func (s *GraphStore) GetGraphByConcept(ctx context.Context, conceptID string) (*domain.ConceptGraph, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(conceptPK(conceptID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewInternal("failed to build graph query", err)
	}

	graph := domain.NewConceptGraph(conceptID)
	var relationships []*domain.Relationship
	var lastKey map[string]types.AttributeValue

	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastKey,
		})
		if err != nil {
			return nil, s.mapError("query concept graph", err, nil)
		}

		for _, raw := range out.Items {
			entityType := ""
			if av, ok := raw["EntityType"].(*types.AttributeValueMemberS); ok {
				entityType = av.Value
			}
			switch entityType {
			case entityTypeCategory:
				var item categoryItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					return nil, apperrors.NewInternal("failed to unmarshal category", err)
				}
				if err := graph.AddCategory(item.toDomain()); err != nil {
					return nil, err
				}
			case entityTypeRelationship:
				var item relationshipItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					return nil, apperrors.NewInternal("failed to unmarshal relationship", err)
				}
				relationships = append(relationships, item.toDomain())
			}
		}

		lastKey = out.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}

	// Categories sort before relationships within a page, but pagination
	// can split them; attach edges only once every node is present.
	for _, rel := range relationships {
		if err := graph.AddRelationship(rel); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

// DeleteGraphByConcept removes every item in the concept's partition.
func (s *GraphStore) DeleteGraphByConcept(ctx context.Context, conceptID string) error {
	graph, err := s.GetGraphByConcept(ctx, conceptID)
	if err != nil {
		return err
	}

	var writes []types.WriteRequest
	for _, rel := range graph.Relationships {
		writes = append(writes, deleteRequest(conceptPK(conceptID), relationshipSK(rel.ID)))
	}
	for _, category := range graph.Categories {
		writes = append(writes, deleteRequest(conceptPK(conceptID), categorySK(category.ID)))
	}

	// BatchWriteItem caps at 25 requests per call.
	for start := 0; start < len(writes); start += 25 {
		end := start + 25
		if end > len(writes) {
			end = len(writes)
		}
		_, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.tableName: writes[start:end],
			},
		})
		if err != nil {
			return s.mapError("delete concept graph", err, nil)
		}
	}
	return nil
}

func deleteRequest(pk, sk string) types.WriteRequest {
	return types.WriteRequest{
		DeleteRequest: &types.DeleteRequest{
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: sk},
			},
		},
	}
}

func (i categoryItem) toDomain() *domain.Category {
	return &domain.Category{
		ID:                     i.CategoryID,
		ConceptID:              i.ConceptID,
		Name:                   i.Name,
		Definition:             i.Definition,
		Centrality:             i.Centrality,
		Certainty:              i.Certainty,
		HistoricalSignificance: i.HistoricalSignificance,
	}
}

func (i relationshipItem) toDomain() *domain.Relationship {
	return &domain.Relationship{
		ID:               i.RelationshipID,
		ConceptID:        i.ConceptID,
		SourceCategoryID: i.SourceCategoryID,
		TargetCategoryID: i.TargetCategoryID,
		Type:             i.Type,
		Direction:        domain.RelationshipDirection(i.Direction),
		Strength:         i.Strength,
		Certainty:        i.Certainty,
	}
}

// mapError translates SDK errors into the shared taxonomy. onCondFail is
// returned for conditional check failures, since the meaning of a failed
// condition depends on the call.
func (s *GraphStore) mapError(op string, err error, onCondFail error) error {
	if err == nil {
		return nil
	}
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) && onCondFail != nil {
		return onCondFail
	}
	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return apperrors.NewUnavailable(op+": throughput exceeded", err)
	}
	s.logger.Error("dynamodb operation failed", zap.String("op", op), zap.Error(err))
	return apperrors.NewUnavailable(op+" failed", err)
}
