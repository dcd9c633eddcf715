package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetCustomer creates or overwrites the local mirror of a remote
// customer. The full document is replaced because local fields are a
// cache of the last-known remote snapshot.
func (ms *MongoStorage) SetCustomer(customer *Customer) error {
	if customer.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if customer.CreatedAt.IsZero() {
		if current, err := ms.Customer(customer.StripeID); err == nil {
			customer.CreatedAt = current.CreatedAt
		} else {
			customer.CreatedAt = now
		}
	}
	customer.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	_, err := ms.customers.ReplaceOne(ctx, bson.M{"_id": customer.StripeID}, customer, opts)
	return err
}

// Customer returns the local mirror of the customer with the given
// remote id, or ErrNotFound.
func (ms *MongoStorage) Customer(stripeID string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	customer := &Customer{}
	if err := ms.customers.FindOne(ctx, bson.M{"_id": stripeID}).Decode(customer); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// CustomerBySubscriber returns the customer owned by the given local
// identity, or ErrNotFound.
func (ms *MongoStorage) CustomerBySubscriber(subscriber string) (*Customer, error) {
	if subscriber == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	customer := &Customer{}
	if err := ms.customers.FindOne(ctx, bson.M{"subscriber": subscriber}).Decode(customer); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// DelCustomer removes the local mirror of a customer. Note that the
// ordinary "deletion" flow is a purge (see the stripe package), which
// keeps the row; this is only used by tests and maintenance tooling.
func (ms *MongoStorage) DelCustomer(stripeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := ms.customers.DeleteOne(ctx, bson.M{"_id": stripeID})
	return err
}
