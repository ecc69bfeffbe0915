package daraja

import (
	"encoding/base64"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

// eat is the provider's local zone (UTC+3, no DST).
var eat = time.FixedZone("EAT", 3*60*60)

// NormalizePhone reduces raw to digits and ensures it carries countryCode.
// It never fails: garbage in yields a well-formed but meaningless number.
func NormalizePhone(raw, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}

		return -1
	}, raw)

	switch {
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case strings.HasPrefix(digits, countryCode):
		return digits
	default:
		return countryCode + digits
	}
}

// Timestamp formats t as YYYYMMDDHHmmss in provider-local time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// Password derives the STK push password. The same timestamp must be sent in the payload.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
