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

// SetPlan creates or overwrites the local mirror of a remote plan.
func (ms *MongoStorage) SetPlan(plan *Plan) error {
	if plan.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if plan.CreatedAt.IsZero() {
		if current, err := ms.Plan(plan.StripeID); err == nil {
			plan.CreatedAt = current.CreatedAt
		} else {
			plan.CreatedAt = now
		}
	}
	plan.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	_, err := ms.plans.ReplaceOne(ctx, bson.M{"_id": plan.StripeID}, plan, opts)
	return err
}

// Plan returns the plan with the given remote product id, or ErrNotFound.
func (ms *MongoStorage) Plan(stripeID string) (*Plan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	plan := &Plan{}
	if err := ms.plans.FindOne(ctx, bson.M{"_id": stripeID}).Decode(plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

// PlanByPriceID returns the plan with the given remote price id, or
// ErrNotFound.
func (ms *MongoStorage) PlanByPriceID(priceID string) (*Plan, error) {
	if priceID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	plan := &Plan{}
	if err := ms.plans.FindOne(ctx, bson.M{"priceID": priceID}).Decode(plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

// DefaultPlan returns the plan flagged as default, or ErrNotFound.
func (ms *MongoStorage) DefaultPlan() (*Plan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	plan := &Plan{}
	if err := ms.plans.FindOne(ctx, bson.M{"default": true}).Decode(plan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return plan, nil
}

// Plans returns all mirrored plans.
func (ms *MongoStorage) Plans() ([]*Plan, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cursor, err := ms.plans.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close plans cursor", "error", err)
		}
	}()
	var plans []*Plan
	for cursor.Next(ctx) {
		plan := &Plan{}
		if err := cursor.Decode(plan); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

// DelPlan removes a mirrored plan.
func (ms *MongoStorage) DelPlan(plan *Plan) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := ms.plans.DeleteOne(ctx, bson.M{"_id": plan.StripeID})
	return err
}
