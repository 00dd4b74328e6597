// Package carrier maps Ugandan phone numbers to the mobile-money network
// that owns the wallet behind them.
package carrier

import (
	"regexp"
	"strings"
)

type Carrier string

const (
	MTN     Carrier = "MTN"
	Airtel  Carrier = "AIRTEL"
	Unknown Carrier = "UNKNOWN"
)

const (
	CountryCode     = "256"
	subscriberDigit = 9
)

// prefixTable lists the local (0-led) subscriber prefixes owned by each
// network. Adding a prefix is a data change here and nowhere else.
var prefixTable = map[Carrier][]string{
	MTN:    {"076", "077", "078", "039"},
	Airtel: {"070", "074", "075", "020"},
}

var (
	prefixIndex   = buildPrefixIndex(prefixTable)
	separators    = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	international = regexp.MustCompile(`^\+256\d{9}$`)
)

func buildPrefixIndex(table map[Carrier][]string) map[string]Carrier {
	index := make(map[string]Carrier)
	for c, prefixes := range table {
		for _, p := range prefixes {
			index[p] = c
		}
	}
	return index
}

// Prefixes returns a copy of the prefixes registered for c.
func Prefixes(c Carrier) []string {
	out := make([]string, len(prefixTable[c]))
	copy(out, prefixTable[c])
	return out
}

// Format normalises local ("0xxxxxxxxx"), bare ("256xxxxxxxxx") and
// subscriber-only ("xxxxxxxxx") forms to "+256xxxxxxxxx". Input that fits
// none of those shapes is returned with separators stripped and is expected
// to fail Validate.
func Format(phoneNumber string) string {
	cleaned := separators.Replace(strings.TrimSpace(phoneNumber))
	if strings.HasPrefix(cleaned, "00"+CountryCode) {
		cleaned = "+" + strings.TrimPrefix(cleaned, "00")
	}

	if !isDigits(strings.TrimPrefix(cleaned, "+")) {
		return cleaned
	}

	switch {
	case strings.HasPrefix(cleaned, "+"+CountryCode):
		return cleaned
	case strings.HasPrefix(cleaned, CountryCode) && len(cleaned) == len(CountryCode)+subscriberDigit:
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == subscriberDigit+1:
		return "+" + CountryCode + cleaned[1:]
	case len(cleaned) == subscriberDigit && !strings.HasPrefix(cleaned, "0"):
		return "+" + CountryCode + cleaned
	}
	return cleaned
}

// Validate is a structural check only: +256 followed by nine digits once formatted.
func Validate(phoneNumber string) bool {
	return international.MatchString(Format(phoneNumber))
}

// Detect never fails; numbers it cannot place are Unknown.
func Detect(phoneNumber string) Carrier {
	formatted := Format(phoneNumber)
	if !international.MatchString(formatted) {
		return Unknown
	}

	local := "0" + formatted[len("+"+CountryCode):]
	if c, ok := prefixIndex[local[:3]]; ok {
		return c
	}
	return Unknown
}

// LocalForm renders a valid number as "0xxxxxxxxx"; invalid input is returned unchanged.
func LocalForm(phoneNumber string) string {
	formatted := Format(phoneNumber)
	if !international.MatchString(formatted) {
		return phoneNumber
	}
	return "0" + formatted[len("+"+CountryCode):]
}

func (c Carrier) Supported() bool {
	return c == MTN || c == Airtel
}

func (c Carrier) String() string {
	return string(c)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
