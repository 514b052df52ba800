package panel

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyFormatter renders a price cell.
type MoneyFormatter interface {
	Format(amount float64) string
}

// CurrencyFormatter formats amounts in a fixed currency for a locale.
type CurrencyFormatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewCurrencyFormatter parses an ISO 4217 code such as "USD" and a BCP 47 locale.
func NewCurrencyFormatter(code, locale string) (*CurrencyFormatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("panel: currency %q: %w", code, err)
	}
	tag := language.English
	if locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("panel: locale %q: %w", locale, err)
		}
		tag = parsed
	}
	return &CurrencyFormatter{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// Format implements MoneyFormatter.
func (f *CurrencyFormatter) Format(amount float64) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(amount)))
}

// PlainMoney prints amounts with two decimals and no symbol.
type PlainMoney struct{}

// Format implements MoneyFormatter.
func (PlainMoney) Format(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}
