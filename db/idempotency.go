package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// NewIdempotencyKey generates and persists a fresh write-once key for
// the given logical action. The key must be reserved before the remote
// call it protects is issued, so that a retry after a crash reuses the
// same key instead of minting a new one.
func (ms *MongoStorage) NewIdempotencyKey(action string) (*IdempotencyKey, error) {
	if action == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := &IdempotencyKey{
		Key:       uuid.NewString(),
		Action:    action,
		CreatedAt: time.Now(),
	}
	if _, err := ms.idempotencyKeys.InsertOne(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// IdempotencyKey returns the stored key, or ErrNotFound.
func (ms *MongoStorage) IdempotencyKey(key string) (*IdempotencyKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ik := &IdempotencyKey{}
	if err := ms.idempotencyKeys.FindOne(ctx, bson.M{"_id": key}).Decode(ik); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ik, nil
}
