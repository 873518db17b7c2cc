package models

import "github.com/shopspring/decimal"

// CapitalGainLine is one matched (buy, sell) pairing.
type CapitalGainLine struct {
	Instrument  Instrument      `json:"instrument"`
	Quantity    decimal.Decimal `json:"quantity"`
	BuyDate     TradeDate       `json:"-"`
	BuyPrice    decimal.Decimal `json:"buy_price"`
	BuyFee      decimal.Decimal `json:"buy_fee"`
	SellDate    TradeDate       `json:"-"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	SellFee     decimal.Decimal `json:"sell_fee"`
	Placeholder bool            `json:"placeholder"` // buy side is synthetic, needs manual review
}

func (l CapitalGainLine) Key() CycleKey {
	return CycleKey{Symbol: l.Instrument.Symbol, Currency: l.Instrument.Currency}
}

func (l CapitalGainLine) BuyAmount() decimal.Decimal { return l.BuyPrice.Mul(l.Quantity) }

func (l CapitalGainLine) SellAmount() decimal.Decimal { return l.SellPrice.Mul(l.Quantity) }

func (l CapitalGainLine) Expenses() decimal.Decimal { return l.BuyFee.Add(l.SellFee) }

// Gain is sell amount minus buy amount minus both allocated fees.
func (l CapitalGainLine) Gain() decimal.Decimal {
	return l.SellAmount().Sub(l.BuyAmount()).Sub(l.Expenses())
}

// CarryForwardRecord is one unmatched trade part prepared for the next period.
type CarryForwardRecord struct {
	Instrument Instrument
	Side       Side
	Date       TradeDate
	Quantity   decimal.Decimal // remaining, positive
	Price      decimal.Decimal
	Fee        decimal.Decimal // fee share of the remaining quantity
}

// SignedQuantity returns the quantity as written in statements: negative for sells.
func (r CarryForwardRecord) SignedQuantity() decimal.Decimal {
	if r.Side == Sell {
		return r.Quantity.Neg()
	}
	return r.Quantity
}

// Proceeds is the signed cash value of the record, negative for a purchase.
func (r CarryForwardRecord) Proceeds() decimal.Decimal {
	return r.SignedQuantity().Mul(r.Price).Neg()
}
