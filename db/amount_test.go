package db

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestAmountConversions(t *testing.T) {
	c := qt.New(t)

	a, err := NewAmount("10.50")
	c.Assert(err, qt.IsNil)
	c.Assert(a.Cents(), qt.Equals, int64(1050))

	c.Assert(AmountFromCents(1050).Equal(a), qt.IsTrue)
	c.Assert(AmountFromCents(0).Cents(), qt.Equals, int64(0))
	c.Assert(AmountFromCents(1).String(), qt.Equals, "0.01")

	// sub-cent precision truncates towards zero
	a, err = NewAmount("10.999")
	c.Assert(err, qt.IsNil)
	c.Assert(a.Cents(), qt.Equals, int64(1099))

	_, err = NewAmount("not-a-number")
	c.Assert(err, qt.IsNotNil)
}

func TestAmountEqual(t *testing.T) {
	c := qt.New(t)

	a, err := NewAmount("10.5")
	c.Assert(err, qt.IsNil)
	b, err := NewAmount("10.50")
	c.Assert(err, qt.IsNil)
	c.Assert(a.Equal(b), qt.IsTrue)
	c.Assert(a.Equal(AmountFromCents(1051)), qt.IsFalse)
}
