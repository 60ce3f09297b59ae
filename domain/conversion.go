package domain

import (
	"math"
	"time"
)

const (
	MinConversionAmount = 0.01
	MaxConversionAmount = 1_000_000
)

// Conversion is one currency conversion performed by an account.
type Conversion struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	AccountID       string    `bson:"account_id" json:"userId"`
	FromCurrency    string    `bson:"from_currency" json:"fromCurrency"`
	ToCurrency      string    `bson:"to_currency" json:"toCurrency"`
	Amount          float64   `bson:"amount" json:"amount"`
	Rate            float64   `bson:"rate" json:"rate"`
	ConvertedAmount float64   `bson:"converted_amount" json:"convertedAmount"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updatedAt"`
}

// ConversionFilter narrows a conversion listing.
type ConversionFilter struct {
	FromCurrency string
	ToCurrency   string
	From         *time.Time
	To           *time.Time
}

// CurrencySummary aggregates an account's conversions into one target currency.
type CurrencySummary struct {
	Currency       string    `bson:"currency" json:"currency"`
	TotalAmount    float64   `bson:"total_amount" json:"totalAmount"`
	Count          int64     `bson:"count" json:"count"`
	AvgRate        float64   `bson:"avg_rate" json:"avgRate"`
	LastConversion time.Time `bson:"last_conversion" json:"lastConversion"`
}

// ConversionStats aggregates all of an account's conversions.
type ConversionStats struct {
	TotalConversions     int64      `bson:"total_conversions" json:"totalConversions"`
	TotalAmountConverted float64    `bson:"total_amount_converted" json:"totalAmountConverted"`
	UniqueCurrencyPairs  int64      `bson:"unique_currency_pairs" json:"uniqueCurrencyPairs"`
	AvgConversionAmount  float64    `bson:"avg_conversion_amount" json:"avgConversionAmount"`
	LastConversion       *time.Time `bson:"last_conversion,omitempty" json:"lastConversion"`
	FirstConversion      *time.Time `bson:"first_conversion,omitempty" json:"firstConversion"`
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
