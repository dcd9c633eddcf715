package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReserveWebhookEvent records a received webhook delivery and reports
// whether it should be processed. The insert relies on the unique _id
// constraint: a concurrent duplicate delivery loses the insert race and
// is resolved by inspecting the already-stored record. An event that was
// stored but never reached the processed state (a crashed or failed
// earlier attempt) is handed out again.
func (ms *MongoStorage) ReserveWebhookEvent(event *WebhookEvent) (bool, error) {
	if event.StripeID == "" {
		return false, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	event.Status = WebhookEventReceived
	if _, err := ms.webhookEvents.InsertOne(ctx, event); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return false, err
		}
		existing, err := ms.WebhookEvent(event.StripeID)
		if err != nil {
			return false, err
		}
		// replay-safe no-op for already processed deliveries
		return existing.Status != WebhookEventProcessed, nil
	}
	return true, nil
}

// MarkWebhookEventProcessed transitions a webhook event record to the
// processed state.
func (ms *MongoStorage) MarkWebhookEventProcessed(stripeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	update := bson.M{"$set": bson.M{"status": WebhookEventProcessed, "processedAt": now}}
	_, err := ms.webhookEvents.UpdateOne(ctx, bson.M{"_id": stripeID}, update)
	return err
}

// MarkWebhookEventRejected records a delivery that failed validation.
// The record is upserted because rejection can happen before the event
// was ever reserved. A record that already reached the processed state
// is left alone: a later forged or broken delivery reusing the event id
// must not reopen it for processing.
func (ms *MongoStorage) MarkWebhookEventRejected(event *WebhookEvent) error {
	if event.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	event.Status = WebhookEventRejected
	filter := bson.M{"_id": event.StripeID, "status": bson.M{"$ne": WebhookEventProcessed}}
	opts := options.Replace().SetUpsert(true)
	if _, err := ms.webhookEvents.ReplaceOne(ctx, filter, event, opts); err != nil {
		// the upsert insert races the filter when the stored record is
		// already processed; that is the keep-it case, not a failure
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	}
	return nil
}

// WebhookEvent returns the stored record of the given remote event id,
// or ErrNotFound.
func (ms *MongoStorage) WebhookEvent(stripeID string) (*WebhookEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	event := &WebhookEvent{}
	if err := ms.webhookEvents.FindOne(ctx, bson.M{"_id": stripeID}).Decode(event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return event, nil
}
