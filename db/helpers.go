package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.vocdoni.io/dvote/log"
)

// initCollections creates the collections in the MongoDB database if they
// don't exist yet.
func (ms *MongoStorage) initCollections(database string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	// get the current collections names to create only the missing ones
	currentCollections, err := ms.collectionNames(ctx, database)
	if err != nil {
		return err
	}
	// aux method to get a collection if it exists, or create it if it doesn't
	getCollection := func(name string) (*mongo.Collection, error) {
		alreadyCreated := false
		for _, c := range currentCollections {
			if c == name {
				alreadyCreated = true
				break
			}
		}
		if !alreadyCreated {
			if err := ms.client.Database(database).CreateCollection(ctx, name); err != nil {
				return nil, err
			}
		}
		return ms.client.Database(database).Collection(name), nil
	}
	// local mirrors of remote objects
	if ms.customers, err = getCollection("customers"); err != nil {
		return err
	}
	if ms.charges, err = getCollection("charges"); err != nil {
		return err
	}
	if ms.subscriptions, err = getCollection("subscriptions"); err != nil {
		return err
	}
	if ms.invoices, err = getCollection("invoices"); err != nil {
		return err
	}
	if ms.plans, err = getCollection("plans"); err != nil {
		return err
	}
	// webhook event records and idempotency keys
	if ms.webhookEvents, err = getCollection("webhookEvents"); err != nil {
		return err
	}
	if ms.idempotencyKeys, err = getCollection("idempotencyKeys"); err != nil {
		return err
	}
	return nil
}

// collectionNames returns the names of the collections in the given database.
func (ms *MongoStorage) collectionNames(ctx context.Context, database string) ([]string, error) {
	collectionsCursor, err := ms.client.Database(database).ListCollections(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := collectionsCursor.Close(ctx); err != nil {
			log.Warnw("failed to close collections cursor", "error", err)
		}
	}()
	collections := []bson.D{}
	if err := collectionsCursor.All(ctx, &collections); err != nil {
		return nil, err
	}
	names := []string{}
	for _, col := range collections {
		for _, v := range col {
			if v.Key == "name" {
				names = append(names, v.Value.(string))
			}
		}
	}
	return names, nil
}

// createIndexes creates the indexes for the collections in the MongoDB
// database. The remote id of every mirror is the _id of its collection,
// so uniqueness of the join key comes for free; only the secondary lookup
// indexes are declared here. Add more indexes here as needed.
func (ms *MongoStorage) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	// create an index for the 'subscriber' field on customers
	customerSubscriberIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "subscriber", Value: 1}}, // 1 for ascending order
		Options: options.Index().SetSparse(true),
	}
	if _, err := ms.customers.Indexes().CreateOne(ctx, customerSubscriberIndex); err != nil {
		return fmt.Errorf("failed to create index on subscriber for customers: %w", err)
	}
	// create an index for the 'customerID' field on charges
	chargeCustomerIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "customerID", Value: 1}},
	}
	if _, err := ms.charges.Indexes().CreateOne(ctx, chargeCustomerIndex); err != nil {
		return fmt.Errorf("failed to create index on customerID for charges: %w", err)
	}
	// create an index for the 'customerID' field on subscriptions
	subscriptionCustomerIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "customerID", Value: 1}},
	}
	if _, err := ms.subscriptions.Indexes().CreateOne(ctx, subscriptionCustomerIndex); err != nil {
		return fmt.Errorf("failed to create index on customerID for subscriptions: %w", err)
	}
	// create an index for the 'customerID' field on invoices
	invoiceCustomerIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "customerID", Value: 1}},
	}
	if _, err := ms.invoices.Indexes().CreateOne(ctx, invoiceCustomerIndex); err != nil {
		return fmt.Errorf("failed to create index on customerID for invoices: %w", err)
	}
	// create an index for the 'priceID' field on plans (must be unique)
	planPriceIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "priceID", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	if _, err := ms.plans.Indexes().CreateOne(ctx, planPriceIndex); err != nil {
		return fmt.Errorf("failed to create index on priceID for plans: %w", err)
	}
	// create an index for the 'status' field on webhook events
	webhookEventStatusIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}
	if _, err := ms.webhookEvents.Indexes().CreateOne(ctx, webhookEventStatusIndex); err != nil {
		return fmt.Errorf("failed to create index on status for webhook events: %w", err)
	}
	return nil
}
