package enums

// Currency is an ISO 4217 code an invoice can be billed in.
type Currency string

const (
	CurrencyIDR Currency = "IDR"
	CurrencyUSD Currency = "USD"
	CurrencySGD Currency = "SGD"
)

var currencies = []Currency{CurrencyIDR, CurrencyUSD, CurrencySGD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return known(c, currencies) }

func ParseCurrency(value string) (Currency, error) {
	return parse(value, currencies, "currency")
}
