package models

import "github.com/shopspring/decimal"

// StartingBalance is credited to a wallet the first time it is read.
var StartingBalance = decimal.NewFromInt(100)

type Wallet struct {
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}
