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

// SetInvoice creates or overwrites the local mirror of a remote invoice.
func (ms *MongoStorage) SetInvoice(invoice *Invoice) error {
	if invoice.StripeID == "" {
		return ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now()
	if invoice.CreatedAt.IsZero() {
		if current, err := ms.Invoice(invoice.StripeID); err == nil {
			invoice.CreatedAt = current.CreatedAt
		} else {
			invoice.CreatedAt = now
		}
	}
	invoice.UpdatedAt = now
	opts := options.Replace().SetUpsert(true)
	_, err := ms.invoices.ReplaceOne(ctx, bson.M{"_id": invoice.StripeID}, invoice, opts)
	return err
}

// Invoice returns the local mirror of the invoice with the given remote
// id, or ErrNotFound.
func (ms *MongoStorage) Invoice(stripeID string) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	invoice := &Invoice{}
	if err := ms.invoices.FindOne(ctx, bson.M{"_id": stripeID}).Decode(invoice); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

// InvoicesByCustomer returns every mirrored invoice of the given remote
// customer id, most recent first.
func (ms *MongoStorage) InvoicesByCustomer(customerID string) ([]*Invoice, error) {
	if customerID == "" {
		return nil, ErrInvalidData
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}})
	cursor, err := ms.invoices.Find(ctx, bson.M{"customerID": customerID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Warnw("failed to close invoices cursor", "error", err)
		}
	}()
	var invoices []*Invoice
	for cursor.Next(ctx) {
		invoice := &Invoice{}
		if err := cursor.Decode(invoice); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}
