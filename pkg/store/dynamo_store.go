package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blogstore/pkg/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DefaultDynamoTable is the single table holding users and articles.
const DefaultDynamoTable = "BlogApp"

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoConfig describes how to reach DynamoDB (or DynamoDB Local).
type DynamoConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Table           string
}

type articleItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Type      string `dynamodbav:"type"`
	ArticleID string `dynamodbav:"articleId"`
	UserID    string `dynamodbav:"userId"`
	Title     string `dynamodbav:"title"`
	Content   string `dynamodbav:"content"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

type userItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	Type         string `dynamodbav:"type"`
	UserID       string `dynamodbav:"userId"`
	Username     string `dynamodbav:"username"`
	Email        string `dynamodbav:"email"`
	PasswordHash string `dynamodbav:"passwordHash"`
	CreatedAt    string `dynamodbav:"createdAt"`
}

// DynamoStore implements Store on a single DynamoDB table with a
// (PK, SK) composite key, a (type, createdAt) index for global listing
// and an email index for account lookup.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoClient builds a DynamoDB client with static credentials and an
// optional endpoint override.
func NewDynamoClient(ctx context.Context, cfg DynamoConfig) (*dynamodb.Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, errors.New("dynamodb region required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoStore connects to DynamoDB using cfg.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	client, err := NewDynamoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewDynamoStoreWithClient(client, cfg.Table), nil
}

// NewDynamoStoreWithClient wraps an existing client.
func NewDynamoStoreWithClient(client DynamoAPI, table string) *DynamoStore {
	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultDynamoTable
	}
	return &DynamoStore{client: client, table: table}
}

func articleKeyAttrs(ownerID, articleID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: UserPK(ownerID)},
		"SK": &types.AttributeValueMemberS{Value: ArticleSK(articleID)},
	}
}

// PutArticle writes the full article item, replacing any previous one.
func (s *DynamoStore) PutArticle(ctx context.Context, a domain.Article) (domain.Article, error) {
	item, err := attributevalue.MarshalMap(articleToItem(a))
	if err != nil {
		return domain.Article{}, dynamoErr("put article", fmt.Errorf("marshal item: %w", err))
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return domain.Article{}, dynamoErr("put article", err)
	}
	return a, nil
}

// GetArticle fetches one article by composite key.
func (s *DynamoStore) GetArticle(ctx context.Context, ownerID, articleID string) (domain.Article, bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       articleKeyAttrs(ownerID, articleID),
	})
	if err != nil {
		return domain.Article{}, false, dynamoErr("get article", err)
	}
	if len(resp.Item) == 0 {
		return domain.Article{}, false, nil
	}
	a, err := unmarshalArticle(resp.Item)
	if err != nil {
		return domain.Article{}, false, dynamoErr("get article", err)
	}
	return a, true, nil
}

// UpdateArticle sets title/content/updatedAt on an existing item only.
func (s *DynamoStore) UpdateArticle(ctx context.Context, ownerID, articleID string, fields ArticleFields) (domain.Article, bool, error) {
	resp, err := s.client.UpdateItem(ctx, updateArticleInput(s.table, ownerID, articleID, fields, FormatTime(clock())))
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.Article{}, false, nil
		}
		return domain.Article{}, false, dynamoErr("update article", err)
	}
	a, err := unmarshalArticle(resp.Attributes)
	if err != nil {
		return domain.Article{}, false, dynamoErr("update article", err)
	}
	return a, true, nil
}

func updateArticleInput(table, ownerID, articleID string, fields ArticleFields, updatedAt string) *dynamodb.UpdateItemInput {
	return &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 articleKeyAttrs(ownerID, articleID),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		UpdateExpression:    aws.String("SET #t = :title, #c = :content, updatedAt = :updatedAt"),
		ExpressionAttributeNames: map[string]string{
			"#t": "title",
			"#c": "content",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title":     &types.AttributeValueMemberS{Value: fields.Title},
			":content":   &types.AttributeValueMemberS{Value: fields.Content},
			":updatedAt": &types.AttributeValueMemberS{Value: updatedAt},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
}

// DeleteArticle removes the item; DynamoDB deletes are idempotent.
func (s *DynamoStore) DeleteArticle(ctx context.Context, ownerID, articleID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       articleKeyAttrs(ownerID, articleID),
	})
	return dynamoErr("delete article", err)
}

// ListArticlesByOwner range-scans the owner's partition on the ARTICLE# prefix.
func (s *DynamoStore) ListArticlesByOwner(ctx context.Context, ownerID string) ([]domain.Article, error) {
	return s.queryArticles(ctx, "list articles by owner", listByOwnerInput(s.table, ownerID))
}

// ListArticlesByDate queries the createdAt index in descending order.
func (s *DynamoStore) ListArticlesByDate(ctx context.Context) ([]domain.Article, error) {
	return s.queryArticles(ctx, "list articles by date", listByDateInput(s.table))
}

func listByOwnerInput(table, ownerID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: UserPK(ownerID)},
			":prefix": &types.AttributeValueMemberS{Value: articleSKPrefix},
		},
	}
}

func listByDateInput(table string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(table),
		IndexName:              aws.String(ArticlesByDateIx),
		KeyConditionExpression: aws.String("#type = :articleVal"),
		ExpressionAttributeNames: map[string]string{
			"#type": "type",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":articleVal": &types.AttributeValueMemberS{Value: domain.TypeArticle},
		},
		ScanIndexForward: aws.Bool(false),
	}
}

func (s *DynamoStore) queryArticles(ctx context.Context, op string, input *dynamodb.QueryInput) ([]domain.Article, error) {
	res := make([]domain.Article, 0)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, dynamoErr(op, err)
		}
		for _, raw := range page.Items {
			a, err := unmarshalArticle(raw)
			if err != nil {
				return nil, dynamoErr(op, err)
			}
			res = append(res, a)
		}
	}
	return res, nil
}

// SaveUser writes the account profile item.
func (s *DynamoStore) SaveUser(ctx context.Context, u domain.User) error {
	item, err := attributevalue.MarshalMap(userToItem(u))
	if err != nil {
		return dynamoErr("save user", fmt.Errorf("marshal item: %w", err))
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return dynamoErr("save user", err)
}

// GetUserByEmail queries the email index.
func (s *DynamoStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(UserEmailIx),
		KeyConditionExpression: aws.String("email = :emailVal"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":emailVal": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return domain.User{}, false, dynamoErr("get user by email", err)
	}
	if len(resp.Items) == 0 {
		return domain.User{}, false, nil
	}
	u, err := unmarshalUser(resp.Items[0])
	if err != nil {
		return domain.User{}, false, dynamoErr("get user by email", err)
	}
	return u, true, nil
}

// GetUserByID fetches the PROFILE item of a user.
func (s *DynamoStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: UserPK(id)},
			"SK": &types.AttributeValueMemberS{Value: profileSK},
		},
	})
	if err != nil {
		return domain.User{}, false, dynamoErr("get user", err)
	}
	if len(resp.Item) == 0 {
		return domain.User{}, false, nil
	}
	u, err := unmarshalUser(resp.Item)
	if err != nil {
		return domain.User{}, false, dynamoErr("get user", err)
	}
	return u, true, nil
}

func articleToItem(a domain.Article) articleItem {
	return articleItem{
		PK:        UserPK(a.OwnerID),
		SK:        ArticleSK(a.ID),
		Type:      domain.TypeArticle,
		ArticleID: a.ID,
		UserID:    a.OwnerID,
		Title:     a.Title,
		Content:   a.Content,
		CreatedAt: FormatTime(a.CreatedAt),
		UpdatedAt: FormatTime(a.UpdatedAt),
	}
}

func unmarshalArticle(raw map[string]types.AttributeValue) (domain.Article, error) {
	var item articleItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return domain.Article{}, fmt.Errorf("unmarshal article item: %w", err)
	}
	return articleFromItem(item)
}

func articleFromItem(item articleItem) (domain.Article, error) {
	createdAt, err := ParseTime(item.CreatedAt)
	if err != nil {
		return domain.Article{}, fmt.Errorf("parse createdAt %q: %w", item.CreatedAt, err)
	}
	updatedAt, err := ParseTime(item.UpdatedAt)
	if err != nil {
		return domain.Article{}, fmt.Errorf("parse updatedAt %q: %w", item.UpdatedAt, err)
	}
	ownerID := item.UserID
	if ownerID == "" {
		ownerID = userIDFromPK(item.PK)
	}
	articleID := item.ArticleID
	if articleID == "" {
		articleID = articleIDFromSK(item.SK)
	}
	return domain.Article{
		ID:        articleID,
		OwnerID:   ownerID,
		Title:     item.Title,
		Content:   item.Content,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func userToItem(u domain.User) userItem {
	return userItem{
		PK:           UserPK(u.ID),
		SK:           profileSK,
		Type:         domain.TypeUser,
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    FormatTime(u.CreatedAt),
	}
}

func unmarshalUser(raw map[string]types.AttributeValue) (domain.User, error) {
	var item userItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return domain.User{}, fmt.Errorf("unmarshal user item: %w", err)
	}
	createdAt, err := ParseTime(item.CreatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("parse createdAt %q: %w", item.CreatedAt, err)
	}
	userID := item.UserID
	if userID == "" {
		userID = userIDFromPK(item.PK)
	}
	return domain.User{
		ID:           userID,
		Username:     item.Username,
		Email:        item.Email,
		PasswordHash: item.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

// dynamoErr wraps err as a StoreError, keeping the service error code
// (for example ProvisionedThroughputExceededException) when there is one.
func dynamoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &StoreError{Op: op, Code: apiErr.ErrorCode(), Err: err}
	}
	return &StoreError{Op: op, Err: err}
}
