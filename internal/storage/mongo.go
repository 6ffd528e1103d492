package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sho7650/content-rotation/internal/core"
)

const (
	// codeBadValue is returned when a hint names an index that does not exist
	codeBadValue = 2
	// codeNoQueryExecutionPlans is returned when no usable plan exists
	codeNoQueryExecutionPlans = 291

	hintMissingMessage = "hint provided does not correspond to an existing index"
)

// contentDocument is the stored shape of a content record
type contentDocument struct {
	ID          string        `bson:"_id"`
	Type        string        `bson:"type"`
	URL         string        `bson:"url"`
	StoragePath string        `bson:"storagePath"`
	Season      string        `bson:"season"`
	Holiday     *string       `bson:"holiday"`
	Status      string        `bson:"status"`
	Prompt      string        `bson:"prompt,omitempty"`
	GeneratedBy string        `bson:"generatedBy,omitempty"`
	Metadata    core.Metadata `bson:"metadata"`
	Tags        []string      `bson:"tags"`
	CreatedAt   time.Time     `bson:"createdAt"`
}

func (d *contentDocument) toItem(contentType core.ContentType) *core.ContentItem {
	item := &core.ContentItem{
		ID:          d.ID,
		Type:        contentType,
		URL:         d.URL,
		StoragePath: d.StoragePath,
		Season:      core.Season(d.Season),
		Status:      core.ContentStatus(d.Status),
		Prompt:      d.Prompt,
		GeneratedBy: d.GeneratedBy,
		Metadata:    d.Metadata,
		Tags:        d.Tags,
		CreatedAt:   d.CreatedAt,
	}
	if d.Holiday != nil {
		item.Holiday = *d.Holiday
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item
}

func newContentDocument(item *core.ContentItem) *contentDocument {
	doc := &contentDocument{
		ID:          item.ID,
		Type:        string(item.Type),
		URL:         item.URL,
		StoragePath: item.StoragePath,
		Season:      string(item.Season),
		Status:      string(item.Status),
		Prompt:      item.Prompt,
		GeneratedBy: item.GeneratedBy,
		Metadata:    item.Metadata,
		Tags:        item.Tags,
		CreatedAt:   item.CreatedAt.UTC(),
	}
	if item.Holiday != "" {
		holiday := item.Holiday
		doc.Holiday = &holiday
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc
}

// MongoStore implements ContentStore and ContentWriter on a MongoDB database
type MongoStore struct {
	uri    string
	dbName string
	client *mongo.Client
	db     *mongo.Database
	ready  bool
}

// NewMongoStore creates a store for the database dbName at uri
func NewMongoStore(uri, dbName string) *MongoStore {
	return &MongoStore{
		uri:    uri,
		dbName: dbName,
	}
}

// Initialize connects to MongoDB and verifies the connection
func (m *MongoStore) Initialize(ctx context.Context) error {
	if m.uri == "" {
		return fmt.Errorf("mongo connection URI is empty")
	}
	if m.dbName == "" {
		return fmt.Errorf("mongo database name is empty")
	}

	clientOptions := options.Client().ApplyURI(m.uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.db = client.Database(m.dbName)
	m.ready = true
	return nil
}

// Close disconnects the client
func (m *MongoStore) Close() error {
	if m.client == nil {
		return nil
	}
	m.ready = false
	err := m.client.Disconnect(context.Background())
	m.client = nil
	m.db = nil
	return err
}

// IsReady returns whether the store is connected
func (m *MongoStore) IsReady() bool {
	return m.ready && m.client != nil
}

// EnsureIndexes creates the compound indexes the filtered queries hint at
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	if !m.IsReady() {
		return ErrNotReady
	}

	for _, contentType := range core.ContentTypes() {
		coll := m.db.Collection(CollectionName(contentType))
		models := []mongo.IndexModel{}
		for _, kind := range []string{"season", "holiday"} {
			models = append(models, mongo.IndexModel{
				Keys: bson.D{
					{Key: kind, Value: 1},
					{Key: "status", Value: 1},
					{Key: "createdAt", Value: -1},
					{Key: "_id", Value: 1},
				},
				Options: options.Index().SetName(mongoIndexName(kind)),
			})
		}
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", CollectionName(contentType), err)
		}
	}

	return nil
}

// Query runs the compound query with an index hint. A missing index is
// reported as core.ErrIndexUnavailable.
func (m *MongoStore) Query(ctx context.Context, query ContentQuery) ([]*core.ContentItem, error) {
	if !m.IsReady() {
		return nil, ErrNotReady
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content query: %w", err)
	}

	findOptions := options.Find().SetSort(mongoSort())
	if query.Limit > 0 {
		findOptions.SetLimit(int64(query.Limit))
	}
	if kind := query.IndexKind(); kind != "" {
		findOptions.SetHint(mongoIndexName(kind))
	}

	coll := m.db.Collection(CollectionName(query.Type))
	cursor, err := coll.Find(ctx, mongoFilter(query), findOptions)
	if err != nil {
		return nil, classifyMongoError(err)
	}

	return decodeItems(ctx, cursor, query.Type)
}

// Scan returns every document of the collection
func (m *MongoStore) Scan(ctx context.Context, contentType core.ContentType) ([]*core.ContentItem, error) {
	if !m.IsReady() {
		return nil, ErrNotReady
	}
	if err := contentType.Validate(); err != nil {
		return nil, err
	}

	cursor, err := m.db.Collection(CollectionName(contentType)).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", CollectionName(contentType), err)
	}

	return decodeItems(ctx, cursor, contentType)
}

// PutContent upserts a content document. An empty ID is assigned a UUID.
func (m *MongoStore) PutContent(ctx context.Context, item *core.ContentItem) error {
	if !m.IsReady() {
		return ErrNotReady
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid content item %s: %w", item.ID, err)
	}

	coll := m.db.Collection(CollectionName(item.Type))
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": item.ID}, newContentDocument(item), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store content item: %w", err)
	}
	return nil
}

// SetStatus changes the status of a single document
func (m *MongoStore) SetStatus(ctx context.Context, contentType core.ContentType, id string, status core.ContentStatus) error {
	if !m.IsReady() {
		return ErrNotReady
	}
	if err := status.Validate(); err != nil {
		return err
	}

	coll := m.db.Collection(CollectionName(contentType))
	result, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("content item %s not found in %s", id, CollectionName(contentType))
	}
	return nil
}

func decodeItems(ctx context.Context, cursor *mongo.Cursor, contentType core.ContentType) ([]*core.ContentItem, error) {
	var docs []contentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", CollectionName(contentType), err)
	}

	items := make([]*core.ContentItem, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toItem(contentType))
	}
	return items, nil
}

// mongoFilter translates a ContentQuery into a find filter
func mongoFilter(query ContentQuery) bson.D {
	filter := bson.D{}
	if query.Season != "" {
		filter = append(filter, bson.E{Key: "season", Value: string(query.Season)})
	}
	if query.Holiday != "" {
		filter = append(filter, bson.E{Key: "holiday", Value: query.Holiday})
	}
	if query.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(query.Status)})
	}
	return filter
}

func mongoSort() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
}

func mongoIndexName(kind string) string {
	return kind + "_status_createdAt"
}

// classifyMongoError maps missing-index server errors to core.ErrIndexUnavailable
func classifyMongoError(err error) error {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(codeNoQueryExecutionPlans) ||
			serverErr.HasErrorCodeWithMessage(codeBadValue, hintMissingMessage) {
			return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
		}
	}
	return fmt.Errorf("failed to query content items: %w", err)
}
