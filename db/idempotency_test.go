package db

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNewIdempotencyKey(t *testing.T) {
	c := qt.New(t)

	first, err := testDB.NewIdempotencyKey("charge.create")
	c.Assert(err, qt.IsNil)
	c.Assert(first.Key, qt.Not(qt.Equals), "")
	c.Assert(first.Action, qt.Equals, "charge.create")
	c.Assert(first.CreatedAt.IsZero(), qt.IsFalse)

	// every reservation mints a distinct key
	second, err := testDB.NewIdempotencyKey("charge.create")
	c.Assert(err, qt.IsNil)
	c.Assert(second.Key, qt.Not(qt.Equals), first.Key)

	stored, err := testDB.IdempotencyKey(first.Key)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Action, qt.Equals, "charge.create")

	_, err = testDB.IdempotencyKey("missing-key")
	c.Assert(err, qt.Equals, ErrNotFound)

	_, err = testDB.NewIdempotencyKey("")
	c.Assert(err, qt.Equals, ErrInvalidData)
}
