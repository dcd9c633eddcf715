package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// SetSubscription creates or overwrites the local mirror of a remote
// subscription.
func (ms *MongoStorage) SetSubscription(subscription *Subscription) error {
	if subscription.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if subscription.CreatedAt.IsZero() {
		if current, err := ms.Subscription(subscription.StripeID); err == nil {
			subscription.CreatedAt = current.CreatedAt
		} else {
			subscription.CreatedAt = now
		}
	}
	subscription.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	_, err := ms.subscriptions.ReplaceOne(ctx, bson.M{"_id": subscription.StripeID}, subscription, opts)
	return err
}

// Subscription returns the local mirror of the subscription with the
// given remote id, or ErrNotFound.
func (ms *MongoStorage) Subscription(stripeID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	subscription := &Subscription{}
	if err := ms.subscriptions.FindOne(ctx, bson.M{"_id": stripeID}).Decode(subscription); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return subscription, nil
}

// SubscriptionsByCustomer returns every mirrored subscription of the
// given remote customer id.
func (ms *MongoStorage) SubscriptionsByCustomer(customerID string) ([]*Subscription, error) {
	if customerID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cursor, err := ms.subscriptions.Find(ctx, bson.M{"customerID": customerID})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close subscriptions cursor", "error", err)
		}
	}()
	var subscriptions []*Subscription
	for cursor.Next(ctx) {
		subscription := &Subscription{}
		if err := cursor.Decode(subscription); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return subscriptions, nil
}
