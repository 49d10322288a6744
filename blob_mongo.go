package trifleachievements

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server codes for Atlas space quota and out-of-disk conditions.
var mongoQuotaCodes = []int{8000, 14031}

// MongoBlobStore implements BlobStore with one document per key.
type MongoBlobStore struct {
	Collection *mongo.Collection
}

// NewMongoBlobStore creates a MongoDB blob store.
func NewMongoBlobStore(collection *mongo.Collection) *MongoBlobStore {
	return &MongoBlobStore{Collection: collection}
}

// Setup creates the unique key index.
func (s *MongoBlobStore) Setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.Collection == nil {
		return NewConfigurationError("mongo blob store requires Collection")
	}
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoBlobStore) Description() string {
	if s.Collection == nil {
		return "MongoBlobStore"
	}
	return fmt.Sprintf("MongoBlobStore(%s)", s.Collection.Name())
}

// Load returns the blob stored under key.
func (s *MongoBlobStore) Load(key string) (string, bool, error) {
	if s.Collection == nil {
		return "", false, NewConfigurationError("mongo blob store requires Collection")
	}
	var doc struct {
		Data string `bson:"data"`
	}
	err := s.Collection.FindOne(context.Background(), bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, loadError(s, key, err)
	}
	return doc.Data, true, nil
}

// Save upserts data under key.
func (s *MongoBlobStore) Save(key string, data string) error {
	if s.Collection == nil {
		return NewConfigurationError("mongo blob store requires Collection")
	}
	_, err := s.Collection.UpdateOne(
		context.Background(),
		bson.M{"key": key},
		bson.M{"$set": bson.M{"data": data}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return saveError(s, key, data, err, isMongoQuota(err))
	}
	return nil
}

// Delete removes key.
func (s *MongoBlobStore) Delete(key string) error {
	if s.Collection == nil {
		return NewConfigurationError("mongo blob store requires Collection")
	}
	if _, err := s.Collection.DeleteOne(context.Background(), bson.M{"key": key}); err != nil {
		return deleteError(s, key, err)
	}
	return nil
}

func isMongoQuota(err error) bool {
	var serverErr mongo.ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	for _, code := range mongoQuotaCodes {
		if serverErr.HasErrorCode(code) {
			return true
		}
	}
	return false
}
