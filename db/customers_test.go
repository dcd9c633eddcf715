package db

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestSetAndGetCustomer(t *testing.T) {
	c := qt.New(t)

	customer := &Customer{
		StripeID:        "cus_set_1",
		Subscriber:      "alice",
		Email:           "alice@example.com",
		CardFingerprint: "fp_1",
		CardLast4:       "4242",
		CardKind:        "Visa",
	}
	c.Assert(testDB.SetCustomer(customer), qt.IsNil)

	stored, err := testDB.Customer("cus_set_1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Subscriber, qt.Equals, "alice")
	c.Assert(stored.Email, qt.Equals, "alice@example.com")
	c.Assert(stored.CardLast4, qt.Equals, "4242")
	c.Assert(stored.CreatedAt.IsZero(), qt.IsFalse)
	firstCreated := stored.CreatedAt

	// overwriting keeps the original creation time
	time.Sleep(10 * time.Millisecond)
	c.Assert(testDB.SetCustomer(&Customer{
		StripeID:   "cus_set_1",
		Subscriber: "alice",
		Email:      "alice+new@example.com",
	}), qt.IsNil)
	updated, err := testDB.Customer("cus_set_1")
	c.Assert(err, qt.IsNil)
	c.Assert(updated.Email, qt.Equals, "alice+new@example.com")
	c.Assert(updated.CreatedAt.Equal(firstCreated), qt.IsTrue)
	c.Assert(updated.UpdatedAt.After(firstCreated), qt.IsTrue)

	// missing customers map to ErrNotFound
	_, err = testDB.Customer("cus_missing")
	c.Assert(err, qt.Equals, ErrNotFound)

	// empty ids are rejected
	c.Assert(testDB.SetCustomer(&Customer{}), qt.Equals, ErrInvalidData)
}

func TestCustomerBySubscriber(t *testing.T) {
	c := qt.New(t)

	c.Assert(testDB.SetCustomer(&Customer{
		StripeID:   "cus_sub_1",
		Subscriber: "bob",
	}), qt.IsNil)

	stored, err := testDB.CustomerBySubscriber("bob")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.StripeID, qt.Equals, "cus_sub_1")

	_, err = testDB.CustomerBySubscriber("nobody")
	c.Assert(err, qt.Equals, ErrNotFound)

	_, err = testDB.CustomerBySubscriber("")
	c.Assert(err, qt.Equals, ErrInvalidData)
}

func TestDelCustomer(t *testing.T) {
	c := qt.New(t)

	c.Assert(testDB.SetCustomer(&Customer{StripeID: "cus_del_1"}), qt.IsNil)
	c.Assert(testDB.DelCustomer("cus_del_1"), qt.IsNil)
	_, err := testDB.Customer("cus_del_1")
	c.Assert(err, qt.Equals, ErrNotFound)
}
