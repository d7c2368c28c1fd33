package catalog

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// ParsePrice converts display text such as "€ 1.234,56" into a decimal.
// decimalSep is "," or "."; the other separator is treated as a thousands
// separator and dropped. Currency symbols and codes may lead or trail the
// amount but not split it. Empty text yields PriceAbsent, anything that does
// not reduce to a single number yields PriceUnparsable.
func ParsePrice(text, decimalSep string) (decimal.NullDecimal, crawler.PriceStatus) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return decimal.NullDecimal{}, crawler.PriceAbsent
	}

	thousandsSep := "."
	if decimalSep == "." {
		thousandsSep = ","
	}
	// "12,-" and "12,–" are whole amounts.
	for _, dash := range []string{"-", "–"} {
		raw = strings.TrimSuffix(raw, decimalSep+dash)
	}

	var (
		b strings.Builder
		// set once a currency symbol or code follows the amount; any digit
		// after that means the text holds more than one number
		trailing bool
	)
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			if trailing {
				return decimal.NullDecimal{}, crawler.PriceUnparsable
			}
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case string(r) == thousandsSep:
		case string(r) == decimalSep:
			b.WriteRune('.')
		case unicode.IsSpace(r):
		case unicode.Is(unicode.Sc, r) || unicode.IsLetter(r):
			// currency symbols and codes such as EUR, before or after the amount
			if hasDigit(b.String()) {
				trailing = true
			}
		default:
			return decimal.NullDecimal{}, crawler.PriceUnparsable
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return decimal.NullDecimal{}, crawler.PriceUnparsable
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, crawler.PriceUnparsable
	}
	return decimal.NewNullDecimal(d), crawler.PriceParsed
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
