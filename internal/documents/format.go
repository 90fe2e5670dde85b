package documents

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.Polish)

// Money renders an amount with two decimals and Polish separators.
func Money(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprint(number.Decimal(f, number.Scale(2)))
}

// Rate renders a tax rate without trailing zeros and with a decimal comma.
func Rate(d decimal.Decimal) string {
	return strings.Replace(d.String(), ".", ",", 1)
}

// Date renders a document date as DD.MM.YYYY.
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006")
}
