package pricing

import "github.com/shopspring/decimal"

// baselineModel is the entry used when nothing else matches.
const baselineModel = "gpt-3.5-turbo"

func perToken(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("pricing: bad default price " + s)
	}
	return d
}

// defaultPrices is the built-in fallback table covering the supported model
// family. Values are USD per token.
var defaultPrices = map[string]PriceEntry{
	"gpt-4o": {
		InputCostPerToken:  perToken("0.0000025"),
		OutputCostPerToken: perToken("0.00001"),
	},
	"gpt-4o-mini": {
		InputCostPerToken:  perToken("0.00000015"),
		OutputCostPerToken: perToken("0.0000006"),
	},
	"gpt-4-turbo": {
		InputCostPerToken:  perToken("0.00001"),
		OutputCostPerToken: perToken("0.00003"),
	},
	"gpt-4": {
		InputCostPerToken:  perToken("0.00003"),
		OutputCostPerToken: perToken("0.00006"),
	},
	"gpt-3.5-turbo": {
		InputCostPerToken:  perToken("0.0000005"),
		OutputCostPerToken: perToken("0.0000015"),
	},
	"o1": {
		InputCostPerToken:  perToken("0.000015"),
		OutputCostPerToken: perToken("0.00006"),
	},
	"o1-mini": {
		InputCostPerToken:  perToken("0.0000011"),
		OutputCostPerToken: perToken("0.0000044"),
	},
}
