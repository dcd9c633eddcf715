package db

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amount is a fixed-point money amount in major units (e.g. 10.00 for
// ten dollars). It is stored in MongoDB as a Decimal128 to avoid any
// binary floating point representation of money.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses a decimal string such as "10.00" into an Amount.
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d}, nil
}

// AmountFromCents converts a remote integer minor-unit amount into a
// major-unit Amount (1000 -> 10.00).
func AmountFromCents(cents int64) Amount {
	return Amount{decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))}
}

// Cents converts the Amount into the provider's integer minor-unit
// representation, truncating towards zero (10.999 -> 1099).
func (a Amount) Cents() int64 {
	return a.Decimal.Mul(decimal.NewFromInt(100)).IntPart()
}

// Equal reports whether two amounts represent the same value.
func (a Amount) Equal(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(a.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("cannot encode amount %s: %w", a.Decimal, err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var d128 primitive.Decimal128
	if err := raw.Unmarshal(&d128); err != nil {
		return fmt.Errorf("cannot decode amount: %w", err)
	}
	d, err := decimal.NewFromString(d128.String())
	if err != nil {
		return fmt.Errorf("cannot decode amount %s: %w", d128, err)
	}
	a.Decimal = d
	return nil
}
