package checkpoint

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Store backed by MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

type mongoCheckpointDoc struct {
	ID         string `bson:"_id"`
	SessionID  string `bson:"session_id"`
	ExchangeID string `bson:"exchange_id"`
	Data       []byte `bson:"data"`
}

// NewMongoStore creates a Mongo-backed checkpoint store.
// dbName defaults to "agenda" if empty, collName defaults to "checkpoints".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "agenda"
	}
	if collName == "" {
		collName = "checkpoints"
	}
	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoStore) Save(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error {
	data, err := encode(cp)
	if err != nil {
		return err
	}

	doc := mongoCheckpointDoc{
		ID:         storageKey(sessionID, exchangeID),
		SessionID:  sessionID,
		ExchangeID: exchangeID,
		Data:       data,
	}

	_, err = s.coll.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Load(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	var doc mongoCheckpointDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": storageKey(sessionID, exchangeID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(doc.Data)
}

func (s *MongoStore) Take(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	var doc mongoCheckpointDoc
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": storageKey(sessionID, exchangeID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(doc.Data)
}

func (s *MongoStore) Delete(ctx context.Context, sessionID, exchangeID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": storageKey(sessionID, exchangeID)})
	return err
}
