package eta

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Format renders how far target lies in the future relative to now
// ("Now", "5 mins", "2 hours", "3 days"). Unparseable input is returned
// as-is.
func Format(target string, now time.Time) string {
	t, ok := parseTimestamp(target)
	if !ok {
		return target
	}
	delta := t.Sub(now)
	if delta <= 0 {
		return "Now"
	}
	switch {
	case delta < time.Hour:
		mins := int(math.Round(delta.Minutes()))
		if mins < 1 {
			mins = 1
		}
		return plural(mins, "min")
	case delta < 24*time.Hour:
		return plural(int(math.Round(delta.Hours())), "hour")
	default:
		return plural(int(math.Round(delta.Hours()/24)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

var currencySymbols = map[string]string{
	"usd": "$",
	"cad": "CA$",
	"eur": "€",
	"gbp": "£",
}

// FormatFare renders an amount as a currency string with two decimals and
// thousands separators, e.g. "$1,234.50".
func FormatFare(amount float64, currency string) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	num := fmt.Sprintf("%s.%02d", b.String(), cents%100)
	if neg {
		num = "-" + num
	}
	cur := strings.ToLower(currency)
	if sym, ok := currencySymbols[cur]; ok {
		return sym + num
	}
	if cur == "" {
		return "$" + num
	}
	return strings.ToUpper(cur) + " " + num
}

// MinorUnits converts a fare to the smallest currency unit (cents).
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
