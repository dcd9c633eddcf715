// Package db provides the MongoDB persistence layer for the payments
// backend: local mirrors of remote Stripe objects, webhook event records
// and idempotency keys.
package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.vocdoni.io/dvote/log"
)

// MongoStorage uses an external MongoDB service for storing the local
// mirrors of the remote payment objects.
type MongoStorage struct {
	client *mongo.Client

	customers       *mongo.Collection
	charges         *mongo.Collection
	subscriptions   *mongo.Collection
	invoices        *mongo.Collection
	plans           *mongo.Collection
	webhookEvents   *mongo.Collection
	idempotencyKeys *mongo.Collection
}

// New connects to the MongoDB server and initializes the collections and
// their indexes. If the PAYMENTS_MONGO_RESET_DB environment variable is
// set, the database is dropped and recreated.
func New(url, database string) (*MongoStorage, error) {
	ms := &MongoStorage{}
	if url == "" {
		return nil, fmt.Errorf("mongo URL is not defined")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database is not defined")
	}
	log.Infow("connecting to mongodb", "url", url, "database", database)
	opts := options.Client()
	opts.ApplyURI(url)
	opts.SetMaxConnecting(200)
	timeout := time.Second * 10
	opts.ConnectTimeout = &timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	// check if the connection is successful
	ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}
	ms.client = client
	if err := ms.initCollections(database); err != nil {
		return nil, err
	}
	// if the reset flag is enabled, Reset drops the documents and
	// recreates the indexes, else just create the indexes
	if reset := os.Getenv("PAYMENTS_MONGO_RESET_DB"); reset != "" {
		if err := ms.Reset(); err != nil {
			return nil, err
		}
	} else {
		if err := ms.createIndexes(); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

// Close disconnects the MongoDB client.
func (ms *MongoStorage) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.client.Disconnect(ctx); err != nil {
		log.Warn(err)
	}
}

// Reset drops every collection and recreates the indexes.
func (ms *MongoStorage) Reset() error {
	log.Infof("resetting database")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, col := range ms.collections() {
		if err := col.Drop(ctx); err != nil {
			return err
		}
	}
	return ms.createIndexes()
}

func (ms *MongoStorage) collections() []*mongo.Collection {
	return []*mongo.Collection{
		ms.customers,
		ms.charges,
		ms.subscriptions,
		ms.invoices,
		ms.plans,
		ms.webhookEvents,
		ms.idempotencyKeys,
	}
}
