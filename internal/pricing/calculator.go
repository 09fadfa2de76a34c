package pricing

import (
	"github.com/shopspring/decimal"
)

// Cost is the result of pricing one completion call in both currencies.
type Cost struct {
	USD   decimal.Decimal `json:"usd"`
	Local decimal.Decimal `json:"local"`
}

// Calculator converts token counts into money using the catalog and a fixed
// exchange rate. All arithmetic is fixed-point; results are rounded half-up
// to the configured precision.
type Calculator struct {
	catalog       *Catalog
	exchangeRate  decimal.Decimal
	precision     int32
	localCurrency string
}

// NewCalculator creates a cost calculator.
func NewCalculator(catalog *Catalog, exchangeRate float64, precision int32, localCurrency string) *Calculator {
	if precision <= 0 {
		precision = 10
	}
	return &Calculator{
		catalog:       catalog,
		exchangeRate:  decimal.NewFromFloat(exchangeRate),
		precision:     precision,
		localCurrency: localCurrency,
	}
}

// LocalCurrency returns the configured local currency code.
func (c *Calculator) LocalCurrency() string {
	return c.localCurrency
}

// Compute prices a completion call. Deterministic for identical inputs:
// the same model, token counts, price entry, and exchange rate always yield
// identical decimals.
func (c *Calculator) Compute(model string, promptTokens, completionTokens uint64) Cost {
	entry := c.catalog.GetPriceEntry(model)

	usd := decimal.NewFromUint64(promptTokens).Mul(entry.InputCostPerToken).
		Add(decimal.NewFromUint64(completionTokens).Mul(entry.OutputCostPerToken))
	local := usd.Mul(c.exchangeRate)

	return Cost{
		USD:   usd.Round(c.precision),
		Local: local.Round(c.precision),
	}
}
