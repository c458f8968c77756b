package model

import "github.com/shopspring/decimal"

// Quote is a single price returned by a data provider.
type Quote struct {
	Symbol   string
	Price    decimal.Decimal
	Currency string
	Source   string
}
