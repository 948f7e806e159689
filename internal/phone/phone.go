// Package phone canonicalizes caller-supplied phone strings into the
// dialing-code-prefixed digit form used as the stable join key for patients.
package phone

import "strings"

// DefaultDialPrefix is applied to bare national numbers.
const DefaultDialPrefix = "+1"

// anonymousSentinels are the carrier placeholders for withheld caller IDs.
var anonymousSentinels = map[string]struct{}{
	"anonymous":  {},
	"restricted": {},
	"blocked":    {},
	"unknown":    {},
	"":           {},
	"+":          {},
}

// IsAnonymous reports whether the raw value is a withheld-caller sentinel.
func IsAnonymous(raw string) bool {
	_, ok := anonymousSentinels[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// Normalize canonicalizes a phone string, prepending dialPrefix to bare
// national numbers. It returns "" for anonymous sentinels and for values
// with fewer than ten digits. Normalize is idempotent over its own output.
func Normalize(raw, dialPrefix string) string {
	trimmed := strings.TrimSpace(raw)
	if IsAnonymous(trimmed) {
		return ""
	}
	if dialPrefix == "" {
		dialPrefix = DefaultDialPrefix
	}

	hadPlus := strings.HasPrefix(trimmed, "+")
	digits := stripNonDigits(trimmed)
	if len(digits) < 10 {
		return ""
	}

	switch {
	case !hadPlus && len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case !hadPlus:
		return dialPrefix + digits
	default:
		return "+" + digits
	}
}

// Equal compares two raw phone values by exact canonical-form equality.
// Unparseable values never match anything, not even each other.
func Equal(a, b, dialPrefix string) bool {
	ca := Normalize(a, dialPrefix)
	cb := Normalize(b, dialPrefix)
	return ca != "" && ca == cb
}

func stripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
