package domain

import (
	"github.com/shopspring/decimal"
)

// merchantCodes is the fixed currency-to-merchant-code table supported by
// the gateway. Adding a region means extending this table; it is never
// inferred from locale or request context.
var merchantCodes = map[string]string{
	"AED": "AE",
	"SAR": "SA",
	"KWD": "KW",
}

// currencyPrecision holds the native decimal precision per supported currency
var currencyPrecision = map[string]int32{
	"AED": 2,
	"SAR": 2,
	"KWD": 3,
}

// MerchantCodeForCurrency resolves the regional merchant code for a
// settlement currency. Unmapped currencies fail closed with
// CURRENCY_UNSUPPORTED since this is a configuration defect, not a
// transient condition.
func MerchantCodeForCurrency(currency string) (string, error) {
	code, ok := merchantCodes[currency]
	if !ok {
		return "", NewDomainError(ErrorCodeCurrencyUnsupported,
			"currency is not supported by the gateway").WithDetail("currency", currency)
	}
	return code, nil
}

// CurrencyForMerchantCode is the inverse lookup, used by webhook
// registration to enumerate regions.
func CurrencyForMerchantCode(code string) (string, bool) {
	for currency, mcode := range merchantCodes {
		if mcode == code {
			return currency, true
		}
	}
	return "", false
}

// AllMerchantCodes returns every known regional merchant code, regardless of
// which currencies are currently enabled. Webhook unregistration iterates
// this full set.
func AllMerchantCodes() []string {
	codes := make([]string, 0, len(merchantCodes))
	for _, code := range merchantCodes {
		codes = append(codes, code)
	}
	return codes
}

// SupportedCurrencies returns the closed set of settlement currencies.
func SupportedCurrencies() []string {
	currencies := make([]string, 0, len(merchantCodes))
	for currency := range merchantCodes {
		currencies = append(currencies, currency)
	}
	return currencies
}

// CurrencyPrecision returns the native decimal precision for a currency.
// Unknown currencies default to 2.
func CurrencyPrecision(currency string) int32 {
	if p, ok := currencyPrecision[currency]; ok {
		return p
	}
	return 2
}

// FormatAmount renders an amount as a fixed-decimal string at the
// currency's native precision. The gateway rejects scientific notation and
// amounts with stripped trailing zeros, so "120" in AED must be "120.00".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(CurrencyPrecision(currency))
}
