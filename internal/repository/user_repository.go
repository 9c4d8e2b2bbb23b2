package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

const (
	userPKPrefix  = "USER#"
	emailPKPrefix = "EMAIL#"
	metadataSK    = "METADATA"
)

// DynamoAPI is the part of *dynamodb.Client the user repository calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// userItem is the single-table layout: the user lives under USER#<uuid>, and
// an EMAIL#<email> item reserves the address and points back at the user.
type userItem struct {
	PK           string    `dynamodbav:"PK"`
	SK           string    `dynamodbav:"SK"`
	UserUUID     string    `dynamodbav:"user_uuid"`
	Email        string    `dynamodbav:"email"`
	Username     string    `dynamodbav:"username"`
	PasswordHash string    `dynamodbav:"password_hash"`
	Role         string    `dynamodbav:"role"`
	Status       int       `dynamodbav:"status"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

type emailItem struct {
	PK       string `dynamodbav:"PK"`
	SK       string `dynamodbav:"SK"`
	UserUUID string `dynamodbav:"user_uuid"`
}

func userPK(id uuid.UUID) string {
	return userPKPrefix + id.String()
}

func emailPK(email string) string {
	return emailPKPrefix + email
}

func itemKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

type DynamoUserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoUserRepository {
	return &DynamoUserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *DynamoUserRepository) FindByUUID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(userPK(userID)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return item.toModel()
}

func (r *DynamoUserRepository) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(emailPK(email)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get email index from DynamoDB")
		return nil, fmt.Errorf("failed to get email index: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var ref emailItem
	if err := attributevalue.UnmarshalMap(result.Item, &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal email index: %w", err)
	}
	userID, err := uuid.Parse(ref.UserUUID)
	if err != nil {
		return nil, fmt.Errorf("email index holds invalid user id: %w", err)
	}

	user, err := r.FindByUUID(ctx, userID)
	if err != nil || user == nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, nil
	}
	return user, nil
}

// Create writes the user and its email reservation in one transaction so an
// address can never be claimed twice.
func (r *DynamoUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(newUserItem(user))
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	ref, err := attributevalue.MarshalMap(emailItem{
		PK:       emailPK(user.Email),
		SK:       metadataSK,
		UserUUID: user.UserUUID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email index: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                ref,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return ErrUserExists
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *DynamoUserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	updatedAt, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(userPK(userID)),
		UpdateExpression:    aws.String("SET password_hash = :password_hash, updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":password_hash": &types.AttributeValueMemberS{Value: passwordHash},
			":updated_at":    updatedAt,
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return ErrUserNotFound
		}
		r.logger.WithError(err).Error("Failed to update user in DynamoDB")
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func (r *DynamoUserRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	return err
}

func newUserItem(u *models.User) userItem {
	return userItem{
		PK:           userPK(u.UserUUID),
		SK:           metadataSK,
		UserUUID:     u.UserUUID.String(),
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Status:       int(u.Status),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (i userItem) toModel() (*models.User, error) {
	id, err := uuid.Parse(i.UserUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", i.UserUUID, err)
	}
	return &models.User{
		UserUUID:     id,
		Email:        i.Email,
		Username:     i.Username,
		PasswordHash: i.PasswordHash,
		Role:         i.Role,
		Status:       models.UserStatus(i.Status),
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}, nil
}
