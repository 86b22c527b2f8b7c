package statement

import (
	"regexp"
	"strings"
)

var (
	vendorPrefixes = regexp.MustCompile(`^(?:(?:POS|POINT OF SALE|DEBIT CARD|VISA DEBIT|INTERAC|PRE-?AUTH(?:ORIZED)?|PURCHASE|PAYMENT|RETAIL|IDP|CARD)\b[\s:-]*)+`)
	cardNumbers    = regexp.MustCompile(`(?:[X*#]{2,}\d{2,4}|\b\d{6,}\b|\b\d{4}\s?\*+\s?\d{4}\b)`)
	locationSuffix = regexp.MustCompile(`(?:\s+(?:AB|BC|SK|MB|ON|QC|NB|NS|PE|NL|YT|NT|NU|CA|CAN))+\s*$`)
	storeNumber    = regexp.MustCompile(`\s+#?\d{1,5}\s*$`)
)

// ExtractVendor guesses the merchant from a bank description by dropping
// point-of-sale prefixes, card numbers and trailing province or store codes.
func ExtractVendor(description string) string {
	s := strings.ToUpper(strings.Join(strings.Fields(description), " "))
	s = cardNumbers.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = vendorPrefixes.ReplaceAllString(s, "")
	for {
		trimmed := storeNumber.ReplaceAllString(locationSuffix.ReplaceAllString(s, ""), "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.TrimSpace(s)
}
