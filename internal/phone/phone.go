package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// Normalize returns the E.164 form of a WhatsApp wa_id ("15551234567" ->
// "+15551234567"). Numbers libphonenumber cannot parse fall back to "+" and
// their digits so the same sender always maps to the same key.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('+')
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 1 {
		return ""
	}

	num, err := phonenumbers.Parse(digits, "")
	if err != nil {
		return digits
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
