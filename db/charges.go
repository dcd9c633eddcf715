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

// SetCharge creates or overwrites the local mirror of a remote charge.
func (ms *MongoStorage) SetCharge(charge *Charge) error {
	if charge.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if charge.CreatedAt.IsZero() {
		if current, err := ms.Charge(charge.StripeID); err == nil {
			charge.CreatedAt = current.CreatedAt
			// receipt bookkeeping is local state, not part of the remote snapshot
			charge.ReceiptSent = charge.ReceiptSent || current.ReceiptSent
		} else {
			charge.CreatedAt = now
		}
	}
	charge.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	_, err := ms.charges.ReplaceOne(ctx, bson.M{"_id": charge.StripeID}, charge, opts)
	return err
}

// Charge returns the local mirror of the charge with the given remote
// id, or ErrNotFound.
func (ms *MongoStorage) Charge(stripeID string) (*Charge, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	charge := &Charge{}
	if err := ms.charges.FindOne(ctx, bson.M{"_id": stripeID}).Decode(charge); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return charge, nil
}

// ChargesByCustomer returns every mirrored charge that belongs to the
// given remote customer id, most recent first.
func (ms *MongoStorage) ChargesByCustomer(customerID string) ([]*Charge, error) {
	if customerID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "chargeCreated", Value: -1}})
	cursor, err := ms.charges.Find(ctx, bson.M{"customerID": customerID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close charges cursor", "error", err)
		}
	}()
	var charges []*Charge
	for cursor.Next(ctx) {
		charge := &Charge{}
		if err := cursor.Decode(charge); err != nil {
			return nil, err
		}
		charges = append(charges, charge)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return charges, nil
}
